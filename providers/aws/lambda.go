package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

func environment(vars map[string]string) *types.Environment {
	if vars == nil {
		vars = map[string]string{}
	}
	return &types.Environment{Variables: vars}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func optionalInt32(v int32) *int32 {
	if v == 0 {
		return nil
	}
	return aws.Int32(v)
}

func (p *Provider) CreateFunction(ctx context.Context, in *funcapi.CreateFunctionInput) (*funcapi.Function, error) {
	input := &lambda.CreateFunctionInput{
		FunctionName: aws.String(in.Name),
		Role:         aws.String(in.RoleARN),
		Handler:      optionalString(in.Handler),
		Runtime:      types.Runtime(in.Runtime),
		Description:  optionalString(in.Description),
		MemorySize:   optionalInt32(in.MemorySize),
		Timeout:      optionalInt32(in.Timeout),
		Environment:  environment(in.Environment),
		Code:         &types.FunctionCode{ZipFile: in.ZipFile},
		Publish:      in.Publish,
	}
	if len(in.Tags) > 0 {
		input.Tags = in.Tags
	}

	resp, err := p.lambdaClient.CreateFunction(ctx, input)
	if err != nil {
		return nil, translate(err)
	}

	if err := p.waitActive(ctx, in.Name); err != nil {
		return nil, err
	}

	return &funcapi.Function{
		Name:     aws.ToString(resp.FunctionName),
		ARN:      aws.ToString(resp.FunctionArn),
		Version:  aws.ToString(resp.Version),
		CodeSHA:  aws.ToString(resp.CodeSha256),
		Modified: aws.ToString(resp.LastModified),
	}, nil
}

func (p *Provider) UpdateFunctionCode(ctx context.Context, in *funcapi.UpdateCodeInput) error {
	_, err := p.lambdaClient.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(in.Name),
		ZipFile:      in.ZipFile,
	})
	if err != nil {
		return translate(err)
	}
	// The configuration update that follows is rejected until the code
	// update has finished.
	return p.waitUpdated(ctx, in.Name)
}

func (p *Provider) UpdateFunctionConfiguration(ctx context.Context, in *funcapi.UpdateConfigInput) (*funcapi.Function, error) {
	resp, err := p.lambdaClient.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(in.Name),
		Role:         aws.String(in.RoleARN),
		Handler:      optionalString(in.Handler),
		Runtime:      types.Runtime(in.Runtime),
		Description:  aws.String(in.Description),
		MemorySize:   optionalInt32(in.MemorySize),
		Timeout:      optionalInt32(in.Timeout),
		Environment:  environment(in.Environment),
	})
	if err != nil {
		return nil, translate(err)
	}

	if err := p.syncTags(ctx, resp.FunctionArn, in.Tags); err != nil {
		return nil, fmt.Errorf("failed to tag function %s: %w", in.Name, err)
	}

	if err := p.waitUpdated(ctx, in.Name); err != nil {
		return nil, err
	}

	return &funcapi.Function{
		Name:     aws.ToString(resp.FunctionName),
		ARN:      aws.ToString(resp.FunctionArn),
		Version:  aws.ToString(resp.Version),
		CodeSHA:  aws.ToString(resp.CodeSha256),
		Modified: aws.ToString(resp.LastModified),
	}, nil
}

// syncTags makes the function's tags equal to desired. Keys under the
// reserved aws: prefix belong to AWS and are left alone.
func (p *Provider) syncTags(ctx context.Context, arn *string, desired map[string]string) error {
	current, err := p.lambdaClient.ListTags(ctx, &lambda.ListTagsInput{Resource: arn})
	if err != nil {
		return translate(err)
	}

	var stale []string
	for k := range current.Tags {
		if _, keep := desired[k]; !keep && !strings.HasPrefix(k, "aws:") {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		logging.Debug("removing tags", "function", aws.ToString(arn), "keys", stale)
		if _, err := p.lambdaClient.UntagResource(ctx, &lambda.UntagResourceInput{
			Resource: arn,
			TagKeys:  stale,
		}); err != nil {
			return translate(err)
		}
	}

	changed := false
	for k, v := range desired {
		if cur, ok := current.Tags[k]; !ok || cur != v {
			changed = true
			break
		}
	}
	if changed {
		if _, err := p.lambdaClient.TagResource(ctx, &lambda.TagResourceInput{
			Resource: arn,
			Tags:     desired,
		}); err != nil {
			return translate(err)
		}
	}
	return nil
}

func (p *Provider) DeleteFunction(ctx context.Context, name string) error {
	_, err := p.lambdaClient.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(name),
	})
	return translate(err)
}

func (p *Provider) GetFunction(ctx context.Context, name string) (*funcapi.Function, error) {
	resp, err := p.lambdaClient.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return nil, translate(err)
	}
	cfg := resp.Configuration
	if cfg == nil {
		return nil, fmt.Errorf("function %s returned no configuration", name)
	}
	return &funcapi.Function{
		Name:     aws.ToString(cfg.FunctionName),
		ARN:      aws.ToString(cfg.FunctionArn),
		Version:  aws.ToString(cfg.Version),
		CodeSHA:  aws.ToString(cfg.CodeSha256),
		Modified: aws.ToString(cfg.LastModified),
	}, nil
}

func (p *Provider) waitActive(ctx context.Context, name string) error {
	if p.waitTimeout <= 0 {
		return nil
	}
	logging.Debug("waiting for function to become active", "name", name)
	waiter := lambda.NewFunctionActiveV2Waiter(p.lambdaClient)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, p.waitTimeout); err != nil {
		return fmt.Errorf("function %s did not become active: %w", name, err)
	}
	return nil
}

func (p *Provider) waitUpdated(ctx context.Context, name string) error {
	if p.waitTimeout <= 0 {
		return nil
	}
	logging.Debug("waiting for function update", "name", name)
	waiter := lambda.NewFunctionUpdatedV2Waiter(p.lambdaClient)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, p.waitTimeout); err != nil {
		return fmt.Errorf("function %s update did not complete: %w", name, err)
	}
	return nil
}
