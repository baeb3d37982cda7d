package domain

// DecisionReason classifies a policy decision
type DecisionReason string

const (
	ReasonAccepted       DecisionReason = "accepted"
	ReasonUnresolved     DecisionReason = "unresolved"
	ReasonWrongContainer DecisionReason = "wrong_container"
	ReasonWrongExtension DecisionReason = "wrong_extension"
)

// Decision is the result of the policy filter. It is only used for logging
// and branching.
type Decision struct {
	Accepted bool
	Reason   DecisionReason
	Message  string
}
