// Package eval loads the function configuration from PKL or YAML.
package eval

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"
	"github.com/go-playground/validator/v10"
	"github.com/picklr-io/lambdasync/internal/ir"
	"gopkg.in/yaml.v3"
)

// ConfigFiles are the entry points searched in a project directory, in order.
var ConfigFiles = []string{"lambdasync.pkl", "lambdasync.yaml", "lambdasync.yml"}

// Evaluator handles config evaluation into IR types.
type Evaluator struct {
	projectDir string
	validator  *validator.Validate
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
		validator:  newValidator(),
	}
}

// FindConfig returns the config file for path. A directory is searched for
// one of ConfigFiles; a file is returned as is.
func FindConfig(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to find config: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range ConfigFiles {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no config file found in %s (looked for %v)", path, ConfigFiles)
}

// LoadConfig evaluates the configuration file and returns the validated IR.
// Code paths are kept as written; relative ones are relative to the config
// file's directory.
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	var (
		doc *document
		err error
	)
	switch filepath.Ext(entryPoint) {
	case ".pkl":
		doc, err = e.evaluatePkl(ctx, entryPoint, properties)
	case ".yaml", ".yml":
		doc, err = decodeYAML(entryPoint)
	default:
		return nil, fmt.Errorf("unsupported config format %q (expected .pkl, .yaml or .yml)", filepath.Ext(entryPoint))
	}
	if err != nil {
		return nil, err
	}

	if err := e.validate(doc); err != nil {
		return nil, err
	}

	return doc.toIR(), nil
}

func (e *Evaluator) evaluatePkl(ctx context.Context, entryPoint string, properties map[string]string) (*document, error) {
	projectDir, err := filepath.Abs(e.projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	u, err := url.Parse("file://" + projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var doc document
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &doc); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}
	return &doc, nil
}

func decodeYAML(path string) (*document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &doc, nil
}
