// Package funcapi defines the contract between the reconciler and a
// function provider. Providers translate these calls into their own API.
package funcapi

import (
	"context"
	"errors"
)

// ErrNotFound is returned (possibly wrapped) when the remote function or
// role does not exist.
var ErrNotFound = errors.New("resource not found")

// Client performs remote calls against a function service.
type Client interface {
	CreateFunction(ctx context.Context, in *CreateFunctionInput) (*Function, error)
	UpdateFunctionCode(ctx context.Context, in *UpdateCodeInput) error
	UpdateFunctionConfiguration(ctx context.Context, in *UpdateConfigInput) (*Function, error)
	DeleteFunction(ctx context.Context, name string) error
	GetFunction(ctx context.Context, name string) (*Function, error)
}

// RoleConstructor creates execution roles.
type RoleConstructor interface {
	ConstructRole(ctx context.Context, in *RoleInput) (*Role, error)
}

// Provider is the full capability set a registered provider exposes.
type Provider interface {
	Client
	RoleConstructor
}

type CreateFunctionInput struct {
	Name        string
	Description string
	Handler     string
	Runtime     string
	RoleARN     string
	MemorySize  int32
	Timeout     int32
	Environment map[string]string
	Tags        map[string]string
	ZipFile     []byte
	Publish     bool
}

type UpdateCodeInput struct {
	Name    string
	ZipFile []byte
}

type UpdateConfigInput struct {
	Name        string
	Description string
	Handler     string
	Runtime     string
	RoleARN     string
	MemorySize  int32
	Timeout     int32
	Environment map[string]string
	Tags        map[string]string
}

// Function is the remote view of a deployed function.
type Function struct {
	Name     string
	ARN      string
	Version  string
	CodeSHA  string
	Modified string
}

type RoleInput struct {
	Name            string
	TrustPolicy     string
	ManagedPolicies []string
	Tags            map[string]string
}

type Role struct {
	Name string
	ARN  string
}
