package ir

// Decision is the outcome of comparing desired and prior state.
type Decision string

const (
	DecisionNoOp    Decision = "NOOP"
	DecisionDeploy  Decision = "DEPLOY"
	DecisionReplace Decision = "REPLACE"
)

func (d Decision) String() string {
	return string(d)
}
