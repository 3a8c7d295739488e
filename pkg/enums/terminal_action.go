package enums

import "fmt"

// TerminalAction is an explicit user or operator instruction mapped to a vendor
// terminal call.
type TerminalAction string

const (
	TerminalActionFinish TerminalAction = "finish"
	TerminalActionCancel TerminalAction = "cancel"
	TerminalActionBan    TerminalAction = "ban"
	TerminalActionRefill TerminalAction = "refill"
)

var validTerminalActions = []TerminalAction{
	TerminalActionFinish,
	TerminalActionCancel,
	TerminalActionBan,
	TerminalActionRefill,
}

// String implements fmt.Stringer.
func (a TerminalAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known TerminalAction.
func (a TerminalAction) IsValid() bool {
	for _, candidate := range validTerminalActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseTerminalAction converts raw input into a TerminalAction.
func ParseTerminalAction(value string) (TerminalAction, error) {
	for _, candidate := range validTerminalActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid terminal action %q", value)
}
