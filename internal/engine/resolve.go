package engine

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/picklr-io/lambdasync/internal/ir"
)

const ptrScheme = "ptr://"

var envRef = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// Lookup returns the last applied record for a function, or nil.
type Lookup func(name string) *ir.PriorInstance

// ResolveValues returns a copy of spec with late-bound values substituted.
// "${env:NAME}" is expanded from the process environment anywhere in a
// value; a value of the form "ptr://<function>/<attr>" is replaced by the
// attribute of that function's applied record (remoteId, name, roleArn,
// version). The result is a plain snapshot with nothing left to evaluate.
func ResolveValues(spec *ir.ResourceSpec, lookup Lookup) (*ir.ResourceSpec, error) {
	out := spec.Clone()

	resolve := func(field, v string) (string, error) {
		r, err := resolveValue(v, lookup)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s of %s: %w", field, spec.Name, err)
		}
		return r, nil
	}

	var err error
	if out.Description, err = resolve("description", out.Description); err != nil {
		return nil, err
	}
	for k, v := range out.Environment {
		if out.Environment[k], err = resolve("environment "+k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range out.Tags {
		if out.Tags[k], err = resolve("tag "+k, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func resolveValue(v string, lookup Lookup) (string, error) {
	if strings.HasPrefix(v, ptrScheme) {
		return resolvePointer(v, lookup)
	}

	var missing string
	expanded := envRef.ReplaceAllStringFunc(v, func(m string) string {
		name := envRef.FindStringSubmatch(m)[1]
		val, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("environment variable %s is not set", missing)
	}
	return expanded, nil
}

func resolvePointer(v string, lookup Lookup) (string, error) {
	ref := strings.TrimPrefix(v, ptrScheme)
	name, attr, ok := strings.Cut(ref, "/")
	if !ok || name == "" || attr == "" {
		return "", fmt.Errorf("malformed reference %q", v)
	}

	var inst *ir.PriorInstance
	if lookup != nil {
		inst = lookup(name)
	}
	if inst == nil {
		return "", fmt.Errorf("reference %q: function %s has not been deployed", v, name)
	}

	val, err := Attribute(inst, attr)
	if err != nil {
		return "", fmt.Errorf("reference %q: %w", v, err)
	}
	return val, nil
}

// Attributes lists the record attributes that can be referenced.
var Attributes = []string{"remoteId", "arn", "name", "version", "roleArn"}

// Attribute returns a named attribute of an applied record.
func Attribute(inst *ir.PriorInstance, attr string) (string, error) {
	switch attr {
	case "remoteId", "arn":
		return inst.RemoteID, nil
	case "name":
		return inst.Name, nil
	case "version":
		return inst.Version, nil
	case "roleArn":
		if inst.Identity == nil {
			return "", fmt.Errorf("function %s has no role", inst.Name)
		}
		return inst.Identity.ARN, nil
	default:
		return "", fmt.Errorf("unknown attribute %s", attr)
	}
}
