package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

// Deploy packages the code and creates or updates the remote function.
// A create is issued when there is no prior record or the name changed;
// otherwise the code is updated first and the configuration second. There
// is no rollback if the configuration update fails after the code update.
func (e *Engine) Deploy(ctx context.Context, spec *ir.ResourceSpec, prior *ir.PriorInstance) (*ir.PriorInstance, error) {
	artifact, err := e.packer.Pack(ctx, spec.Code, spec.Excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", spec.Name, err)
	}

	applied := spec.Clone()
	applied.Fingerprint = artifact.Fingerprint

	roleARN := ""
	if applied.Identity != nil {
		roleARN = applied.Identity.ARN
	}

	var fn *funcapi.Function
	if prior == nil || prior.Name != spec.Name {
		logging.Info("creating function", "name", spec.Name, "runtime", spec.Runtime)
		fn, err = e.client.CreateFunction(ctx, &funcapi.CreateFunctionInput{
			Name:        applied.Name,
			Description: applied.Description,
			Handler:     applied.Handler,
			Runtime:     applied.Runtime,
			RoleARN:     roleARN,
			MemorySize:  applied.MemorySize,
			Timeout:     applied.Timeout,
			Environment: applied.Environment,
			Tags:        applied.Tags,
			ZipFile:     artifact.Bytes,
			Publish:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create function %s: %w", ErrProviderCall, spec.Name, err)
		}
	} else {
		logging.Info("updating function", "name", spec.Name, "remote_id", prior.RemoteID)
		if err := e.client.UpdateFunctionCode(ctx, &funcapi.UpdateCodeInput{
			Name:    applied.Name,
			ZipFile: artifact.Bytes,
		}); err != nil {
			return nil, fmt.Errorf("%w: failed to update code for %s: %w", ErrProviderCall, spec.Name, err)
		}

		fn, err = e.client.UpdateFunctionConfiguration(ctx, &funcapi.UpdateConfigInput{
			Name:        applied.Name,
			Description: applied.Description,
			Handler:     applied.Handler,
			Runtime:     applied.Runtime,
			RoleARN:     roleARN,
			MemorySize:  applied.MemorySize,
			Timeout:     applied.Timeout,
			Environment: applied.Environment,
			Tags:        applied.Tags,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to update configuration for %s: %w", ErrProviderCall, spec.Name, err)
		}
	}

	return &ir.PriorInstance{
		ResourceSpec: *applied,
		RemoteID:     fn.ARN,
		Version:      fn.Version,
		UpdatedAt:    e.now().UTC().Format(time.RFC3339),
	}, nil
}
