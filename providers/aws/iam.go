package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

// ConstructRole creates an execution role and attaches the managed
// policies. An existing role with the same name is adopted.
func (p *Provider) ConstructRole(ctx context.Context, in *funcapi.RoleInput) (*funcapi.Role, error) {
	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(in.Name),
		AssumeRolePolicyDocument: aws.String(in.TrustPolicy),
	}
	if len(in.Tags) > 0 {
		keys := make([]string, 0, len(in.Tags))
		for k := range in.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			input.Tags = append(input.Tags, types.Tag{Key: aws.String(k), Value: aws.String(in.Tags[k])})
		}
	}

	var arn string
	resp, err := p.iamClient.CreateRole(ctx, input)
	switch {
	case err == nil:
		arn = aws.ToString(resp.Role.Arn)
		logging.Info("created execution role", "role", in.Name)
	case isAlreadyExists(err):
		existing, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(in.Name)})
		if err != nil {
			return nil, fmt.Errorf("failed to read existing role %s: %w", in.Name, translate(err))
		}
		arn = aws.ToString(existing.Role.Arn)
		logging.Info("adopted existing execution role", "role", in.Name)
	default:
		return nil, fmt.Errorf("failed to create role %s: %w", in.Name, err)
	}

	for _, policyARN := range in.ManagedPolicies {
		if _, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(in.Name),
			PolicyArn: aws.String(policyARN),
		}); err != nil {
			return nil, fmt.Errorf("failed to attach policy %s to role %s: %w", policyARN, in.Name, err)
		}
	}

	if p.waitTimeout > 0 {
		waiter := iam.NewRoleExistsWaiter(p.iamClient)
		if err := waiter.Wait(ctx, &iam.GetRoleInput{RoleName: aws.String(in.Name)}, p.waitTimeout); err != nil {
			return nil, fmt.Errorf("role %s did not become available: %w", in.Name, err)
		}
	}

	return &funcapi.Role{Name: in.Name, ARN: arn}, nil
}
