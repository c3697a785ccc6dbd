package engine

import (
	"errors"

	"github.com/picklr-io/lambdasync/internal/packager"
)

var (
	// ErrPackaging marks failures while hashing or archiving code.
	ErrPackaging = packager.ErrPackaging

	// ErrIdentityResolution marks failures constructing an execution role.
	ErrIdentityResolution = errors.New("identity resolution failed")

	// ErrProviderCall marks failures from create or update calls.
	ErrProviderCall = errors.New("provider call failed")

	// ErrRemoval marks delete failures other than not-found.
	ErrRemoval = errors.New("removal failed")
)
