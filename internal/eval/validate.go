package eval

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	funcNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	envKeyPattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("funcname", func(fl validator.FieldLevel) bool {
		return funcNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("envkey", func(fl validator.FieldLevel) bool {
		return envKeyPattern.MatchString(fl.Field().String())
	})
	return v
}

// validate checks struct constraints and cross-function rules.
func (e *Evaluator) validate(doc *document) error {
	var problems []string

	if err := e.validator.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	// Records are keyed by id, or by name when no id is set, so the two
	// share one namespace.
	names := make(map[string]bool, len(doc.Functions))
	keys := make(map[string]*functionConfig, len(doc.Functions))
	for _, fn := range doc.Functions {
		if fn == nil || fn.Name == "" {
			continue
		}
		if names[fn.Name] {
			problems = append(problems, fmt.Sprintf("function %q is declared more than once", fn.Name))
			continue
		}
		names[fn.Name] = true

		key := fn.ID
		if key == "" {
			key = fn.Name
		}
		if other, taken := keys[key]; taken {
			if fn.ID != "" && other.ID != "" {
				problems = append(problems, fmt.Sprintf("id %q is used by more than one function", key))
			} else {
				problems = append(problems, fmt.Sprintf("function %q and function %q share the state key %q", other.Name, fn.Name, key))
			}
			continue
		}
		keys[key] = fn
	}

	if doc.Backend != nil && doc.Backend.Type == "s3" && doc.Backend.Config["bucket"] == "" {
		problems = append(problems, "backend s3 requires config.bucket")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "document.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "funcname":
		return fmt.Sprintf("%s %q may only contain letters, digits, hyphens and underscores", field, fe.Value())
	case "envkey":
		return fmt.Sprintf("%s: %q is not a valid environment variable name", field, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
