package engine

import "github.com/picklr-io/lambdasync/internal/ir"

// Decide picks the action for current given the last applied record.
// Rules are evaluated in order and the first match wins:
//  1. prior exists and the name changed: REPLACE
//  2. no prior, config changed or identity changed: DEPLOY
//  3. otherwise: NOOP
func Decide(current *ir.ResourceSpec, prior *ir.PriorInstance) ir.Decision {
	if prior != nil && prior.Name != current.Name {
		return ir.DecisionReplace
	}
	if prior == nil || HasConfigChanged(current, prior) || HasIdentityChanged(current, prior) {
		return ir.DecisionDeploy
	}
	return ir.DecisionNoOp
}
