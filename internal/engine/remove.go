package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

// Remove deletes the named function. A function that is already gone is
// treated as removed.
func (e *Engine) Remove(ctx context.Context, name string) error {
	logging.Info("removing function", "name", name)

	err := e.client.DeleteFunction(ctx, name)
	if err == nil {
		return nil
	}
	if errors.Is(err, funcapi.ErrNotFound) {
		logging.Debug("function already absent", "name", name)
		return nil
	}
	return fmt.Errorf("%w: failed to delete function %s: %w", ErrRemoval, name, err)
}
