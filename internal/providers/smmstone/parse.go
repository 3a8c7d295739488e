package smmstone

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The panel's responses are semi-structured: numeric fields arrive as numbers
// or quoted strings depending on endpoint, errors arrive as {"error": "..."}
// or as bare text. Parsing is kept in pure functions so every observed shape
// can be pinned in tests.

var errNotJSON = errors.New("smmstone response is not a json object")

// flexValue tolerates a field encoded as a JSON number or a quoted string.
type flexValue string

func (f *flexValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*f = flexValue(strings.TrimSpace(asString))
		return nil
	}
	*f = flexValue(trimmed)
	return nil
}

func (f flexValue) String() string { return string(f) }

func (f flexValue) Int() (int64, bool) {
	parsed, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (f flexValue) Float() (float64, bool) {
	parsed, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

type rawEnvelope struct {
	Error      flexValue `json:"error"`
	Order      flexValue `json:"order"`
	Status     flexValue `json:"status"`
	Charge     flexValue `json:"charge"`
	StartCount flexValue `json:"start_count"`
	Remains    flexValue `json:"remains"`
	Balance    flexValue `json:"balance"`
	Currency   flexValue `json:"currency"`
}

func decodeEnvelope(body []byte) (*rawEnvelope, error) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		// Bare text is how the panel reports hard failures (rate limits,
		// maintenance pages). Surface it verbatim.
		if trimmed == "" {
			return nil, errNotJSON
		}
		return nil, fmt.Errorf("%w: %s", errNotJSON, truncate(trimmed, 200))
	}
	var envelope rawEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, fmt.Errorf("decode smmstone response: %w", err)
	}
	if msg := envelope.Error.String(); msg != "" {
		return nil, fmt.Errorf("smmstone error: %s", msg)
	}
	return &envelope, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ParseOrderID extracts the panel order id from an add-order response.
func ParseOrderID(body []byte) (string, error) {
	envelope, err := decodeEnvelope(body)
	if err != nil {
		return "", err
	}
	id := envelope.Order.String()
	if id == "" || id == "0" {
		return "", errors.New("smmstone returned no order id")
	}
	return id, nil
}

// StatusFields is the normalized content of a status response.
type StatusFields struct {
	Status     string
	Charge     float64
	StartCount int64
	Remains    int64
	HasCounts  bool
}

// ParseStatus extracts the order status and delivery counters. Counters are
// optional; HasCounts reports whether both arrived intact.
func ParseStatus(body []byte) (*StatusFields, error) {
	envelope, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	status := envelope.Status.String()
	if status == "" {
		return nil, errors.New("smmstone status response missing status field")
	}
	fields := &StatusFields{Status: status}
	if charge, ok := envelope.Charge.Float(); ok {
		fields.Charge = charge
	}
	start, startOK := envelope.StartCount.Int()
	remains, remainsOK := envelope.Remains.Int()
	if startOK && remainsOK {
		fields.StartCount = start
		fields.Remains = remains
		fields.HasCounts = true
	}
	return fields, nil
}

// ParseBalance extracts the account balance from a balance response.
func ParseBalance(body []byte) (float64, string, error) {
	envelope, err := decodeEnvelope(body)
	if err != nil {
		return 0, "", err
	}
	balance, ok := envelope.Balance.Float()
	if !ok {
		return 0, "", errors.New("smmstone balance response missing balance field")
	}
	return balance, envelope.Currency.String(), nil
}
