// Package engine reconciles a declared function against its last applied
// record: it detects changes, decides on an action and drives the provider.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/lambdasync/internal/identity"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/picklr-io/lambdasync/internal/packager"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

// IdentityResolver constructs an execution role for a function.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, resourceName, serviceToken string) (*ir.IdentityReference, error)
}

// Packer packages and fingerprints function code.
type Packer interface {
	Pack(ctx context.Context, loc ir.CodeLocation, excludes []string) (*packager.Artifact, error)
	Fingerprint(loc ir.CodeLocation, excludes []string) (string, error)
}

// Reconciler converges one function at a time.
type Reconciler interface {
	Reconcile(ctx context.Context, spec *ir.ResourceSpec, prior *ir.PriorInstance) (*Outcome, error)
	Remove(ctx context.Context, name string) error
}

// Outcome is the result of reconciling one function.
type Outcome struct {
	Decision ir.Decision

	// Spec is the resolved desired state, including the identity and
	// fingerprint used for the decision.
	Spec *ir.ResourceSpec

	// Instance is the record to persist. It is the prior record for NOOP
	// and nil if the function no longer exists.
	Instance *ir.PriorInstance

	// Removed is set once the prior function was deleted during REPLACE,
	// even if the following create failed.
	Removed bool
}

// Engine is the Reconciler backed by a provider client.
type Engine struct {
	client       funcapi.Client
	identities   IdentityResolver
	packer       Packer
	lookup       Lookup
	serviceToken string
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPacker replaces the default packager.
func WithPacker(p Packer) Option {
	return func(e *Engine) { e.packer = p }
}

// WithLookup sets the record source for ptr:// references.
func WithLookup(l Lookup) Option {
	return func(e *Engine) { e.lookup = l }
}

// WithServiceToken sets the principal used in generated trust policies.
func WithServiceToken(token string) Option {
	return func(e *Engine) { e.serviceToken = token }
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine driving client, with identities resolving execution roles.
func NewEngine(client funcapi.Client, identities IdentityResolver, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		identities:   identities,
		packer:       packager.New(),
		serviceToken: identity.DefaultServiceToken,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Reconciler = (*Engine)(nil)

// Reconcile converges the remote function to spec.
func (e *Engine) Reconcile(ctx context.Context, spec *ir.ResourceSpec, prior *ir.PriorInstance) (*Outcome, error) {
	current, err := ResolveValues(spec, e.lookup)
	if err != nil {
		return nil, err
	}

	if current.Identity == nil {
		if ref := reusableIdentity(current, prior); ref != nil {
			current.Identity = ref
		} else {
			ref, err := e.identities.ResolveIdentity(ctx, current.Name, e.serviceToken)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrIdentityResolution, current.Name, err)
			}
			current.Identity = ref
		}
	}

	if current.Fingerprint, err = e.packer.Fingerprint(current.Code, current.Excludes); err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", current.Name, err)
	}

	out := &Outcome{
		Decision: Decide(current, prior),
		Spec:     current,
		Instance: prior,
	}
	log := logging.With("name", current.Name, "decision", out.Decision)

	switch out.Decision {
	case ir.DecisionNoOp:
		log.Debug("function is up to date")
		return out, nil

	case ir.DecisionReplace:
		log.Info("replacing function", "prior_name", prior.Name)
		if err := e.Remove(ctx, prior.Name); err != nil {
			return out, err
		}
		out.Removed = true
		out.Instance = nil
	}

	inst, err := e.Deploy(ctx, current, prior)
	if err != nil {
		return out, err
	}
	out.Instance = inst
	return out, nil
}

// Plan computes the decision for spec without any remote calls. An absent
// identity is assumed to be the generated role for the function.
func (e *Engine) Plan(spec *ir.ResourceSpec, prior *ir.PriorInstance) (*Outcome, error) {
	current, err := ResolveValues(spec, e.lookup)
	if err != nil {
		return nil, err
	}
	if current.Identity == nil {
		if ref := reusableIdentity(current, prior); ref != nil {
			current.Identity = ref
		} else {
			current.Identity = &ir.IdentityReference{Name: identity.RoleName(current.Name)}
		}
	}
	if current.Fingerprint, err = e.packer.Fingerprint(current.Code, current.Excludes); err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", current.Name, err)
	}
	return &Outcome{Decision: Decide(current, prior), Spec: current, Instance: prior}, nil
}

// Refresh re-reads the remote function for a record. It returns nil when
// the function no longer exists.
func (e *Engine) Refresh(ctx context.Context, prior *ir.PriorInstance) (*ir.PriorInstance, error) {
	fn, err := e.client.GetFunction(ctx, prior.Name)
	if err != nil {
		if errors.Is(err, funcapi.ErrNotFound) {
			logging.Warn("function missing remotely", "name", prior.Name)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read function %s: %w", ErrProviderCall, prior.Name, err)
	}

	refreshed := prior.Clone()
	refreshed.RemoteID = fn.ARN
	if fn.Version != "" {
		refreshed.Version = fn.Version
	}
	return refreshed, nil
}

// reusableIdentity returns the generated role recorded for the function by
// an earlier run, if any.
func reusableIdentity(current *ir.ResourceSpec, prior *ir.PriorInstance) *ir.IdentityReference {
	if prior == nil || prior.Identity == nil {
		return nil
	}
	if prior.Identity.Name != identity.RoleName(current.Name) {
		return nil
	}
	ref := *prior.Identity
	return &ref
}
