package engine

import (
	"reflect"

	"github.com/picklr-io/lambdasync/internal/ir"
)

// normalized is the field set compared to detect configuration drift.
// Environment variables are not part of it: their values may be resolved
// from late-bound sources and do not compare reliably, so environment-only
// edits do not trigger a deploy.
type normalized struct {
	Name        string
	Description string
	Handler     string
	Code        ir.CodeLocation
	Runtime     string
	MemorySize  int32
	Timeout     int32
	Fingerprint string
	Tags        map[string]string
}

func normalize(s *ir.ResourceSpec) normalized {
	n := normalized{
		Name:        s.Name,
		Description: s.Description,
		Handler:     s.Handler,
		Code:        ir.CodeLocation{Dir: s.Code.Dir},
		Runtime:     s.Runtime,
		MemorySize:  s.MemorySize,
		Timeout:     s.Timeout,
		Fingerprint: s.Fingerprint,
	}
	if len(s.Code.Extras) > 0 {
		n.Code.Extras = s.Code.Extras
	}
	if len(s.Tags) > 0 {
		n.Tags = s.Tags
	}
	return n
}

// HasConfigChanged reports whether current differs from prior on any
// normalized field. A missing prior always counts as changed.
func HasConfigChanged(current *ir.ResourceSpec, prior *ir.PriorInstance) bool {
	if prior == nil {
		return true
	}
	return !reflect.DeepEqual(normalize(current), normalize(&prior.ResourceSpec))
}

// HasIdentityChanged compares role names only, so a role recreated out of
// band with a new ARN is not treated as a swap.
func HasIdentityChanged(current *ir.ResourceSpec, prior *ir.PriorInstance) bool {
	if prior == nil {
		return true
	}
	return identityName(current.Identity) != identityName(prior.Identity)
}

func identityName(ref *ir.IdentityReference) string {
	if ref == nil {
		return ""
	}
	return ref.Name
}
