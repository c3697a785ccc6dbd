package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/picklr-io/lambdasync/internal/ir"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

var (
	_ Backend = (*Manager)(nil)
	_ Backend = (*s3Backend)(nil)
)

// S3BackendConfig holds configuration for the S3 state backend.
type S3BackendConfig struct {
	Bucket        string `json:"bucket"`
	Key           string `json:"key"`
	Region        string `json:"region"`
	DynamoDBTable string `json:"dynamodb_table"` // for locking
	Encrypt       bool   `json:"encrypt"`
	Profile       string `json:"profile"`
}

// NewBackend creates a state backend from configuration. A nil config or
// the "local" type selects the state file under baseDir.
func NewBackend(ctx context.Context, cfg *ir.BackendConfig, baseDir string) (Backend, error) {
	if cfg == nil {
		return NewManager(filepath.Join(baseDir, DefaultPath)), nil
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			path = DefaultPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return NewManager(path), nil
	case "s3":
		return newS3Backend(ctx, cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
