package enums

// CallOutcome classifies the result of a provider API call for telemetry.
type CallOutcome string

const (
	CallOutcomeOK          CallOutcome = "ok"
	CallOutcomeRejected    CallOutcome = "rejected"
	CallOutcomeUnreachable CallOutcome = "unreachable"
	CallOutcomeAmbiguous   CallOutcome = "ambiguous"
)

// String implements fmt.Stringer.
func (o CallOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known CallOutcome.
func (o CallOutcome) IsValid() bool {
	switch o {
	case CallOutcomeOK, CallOutcomeRejected, CallOutcomeUnreachable, CallOutcomeAmbiguous:
		return true
	}
	return false
}
