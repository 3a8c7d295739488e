package enums

import "fmt"

// ProviderID names an external vendor integration.
type ProviderID string

const (
	ProviderFiveSim  ProviderID = "fivesim"
	ProviderEsimGo   ProviderID = "esimgo"
	ProviderSmmStone ProviderID = "smmstone"
)

var validProviderIDs = []ProviderID{
	ProviderFiveSim,
	ProviderEsimGo,
	ProviderSmmStone,
}

// String implements fmt.Stringer.
func (p ProviderID) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderID.
func (p ProviderID) IsValid() bool {
	for _, candidate := range validProviderIDs {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderID converts raw input into a ProviderID.
func ParseProviderID(value string) (ProviderID, error) {
	for _, candidate := range validProviderIDs {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider id %q", value)
}
