// Package identity constructs the execution role a function assumes when no
// role is declared for it.
package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

const (
	// DefaultServiceToken is the principal allowed to assume generated roles.
	DefaultServiceToken = "lambda.amazonaws.com"

	// BasicExecutionPolicyARN grants CloudWatch Logs write access.
	BasicExecutionPolicyARN = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"

	roleSuffix = "-execution-role"
)

// RoleName returns the generated role name for a function.
func RoleName(resourceName string) string {
	return resourceName + roleSuffix
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal"`
	Action    string            `json:"Action"`
}

// TrustPolicy returns the assume-role policy document for serviceToken.
func TrustPolicy(serviceToken string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]string{"Service": serviceToken},
			Action:    "sts:AssumeRole",
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trust policy: %w", err)
	}
	return string(b), nil
}

// Resolver builds execution roles through a RoleConstructor.
type Resolver struct {
	constructor     funcapi.RoleConstructor
	managedPolicies []string
}

func NewResolver(constructor funcapi.RoleConstructor) *Resolver {
	return &Resolver{
		constructor:     constructor,
		managedPolicies: []string{BasicExecutionPolicyARN},
	}
}

// ResolveIdentity constructs the role for resourceName. Construction errors
// are returned as-is.
func (r *Resolver) ResolveIdentity(ctx context.Context, resourceName, serviceToken string) (*ir.IdentityReference, error) {
	if serviceToken == "" {
		serviceToken = DefaultServiceToken
	}
	policy, err := TrustPolicy(serviceToken)
	if err != nil {
		return nil, err
	}

	name := RoleName(resourceName)
	logging.Info("resolving execution role", "function", resourceName, "role", name)

	role, err := r.constructor.ConstructRole(ctx, &funcapi.RoleInput{
		Name:            name,
		TrustPolicy:     policy,
		ManagedPolicies: r.managedPolicies,
	})
	if err != nil {
		return nil, err
	}

	return &ir.IdentityReference{Name: role.Name, ARN: role.ARN}, nil
}
