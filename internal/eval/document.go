package eval

import (
	"fmt"
	"strings"

	"github.com/picklr-io/lambdasync/internal/ir"
	"gopkg.in/yaml.v3"
)

const (
	defaultMemorySize int32 = 128
	defaultTimeout    int32 = 3
)

// document is the on-disk configuration shape shared by PKL and YAML.
type document struct {
	Region    string            `pkl:"region" yaml:"region"`
	Backend   *backendDocument  `pkl:"backend" yaml:"backend" validate:"omitempty"`
	Functions []*functionConfig `pkl:"functions" yaml:"functions" validate:"dive,required"`
}

type backendDocument struct {
	Type   string            `pkl:"type" yaml:"type" validate:"omitempty,oneof=local s3"`
	Config map[string]string `pkl:"config" yaml:"config"`
}

type roleDocument struct {
	Name string `pkl:"name" yaml:"name"`
	ARN  string `pkl:"arn" yaml:"arn" validate:"required,startswith=arn:"`
}

type functionConfig struct {
	ID          string            `pkl:"id" yaml:"id" validate:"omitempty,max=64,funcname"`
	Name        string            `pkl:"name" yaml:"name" validate:"required,max=64,funcname"`
	Description string            `pkl:"description" yaml:"description" validate:"max=256"`
	Handler     string            `pkl:"handler" yaml:"handler" validate:"required"`
	Runtime     string            `pkl:"runtime" yaml:"runtime" validate:"required"`
	Code        CodePaths         `pkl:"code" yaml:"code" validate:"min=1,dive,required"`
	MemorySize  int32             `pkl:"memorySize" yaml:"memorySize" validate:"omitempty,min=128,max=10240"`
	Timeout     int32             `pkl:"timeout" yaml:"timeout" validate:"omitempty,min=1,max=900"`
	Role        *roleDocument     `pkl:"role" yaml:"role" validate:"omitempty"`
	Environment map[string]string `pkl:"environment" yaml:"environment" validate:"dive,keys,envkey,endkeys"`
	Tags        map[string]string `pkl:"tags" yaml:"tags" validate:"max=50"`
	Excludes    []string          `pkl:"excludes" yaml:"excludes" validate:"dive,required"`
}

// CodePaths is a code directory optionally followed by auxiliary files.
// In YAML it may be written as a single string or a list.
type CodePaths []string

func (c *CodePaths) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*c = CodePaths{value.Value}
		return nil
	case yaml.SequenceNode:
		var paths []string
		if err := value.Decode(&paths); err != nil {
			return err
		}
		*c = paths
		return nil
	default:
		return fmt.Errorf("line %d: code must be a path or a list of paths", value.Line)
	}
}

func (d *document) toIR() *ir.Config {
	cfg := &ir.Config{Region: d.Region}
	if d.Backend != nil {
		cfg.Backend = &ir.BackendConfig{Type: d.Backend.Type, Config: d.Backend.Config}
	}
	for _, fn := range d.Functions {
		cfg.Functions = append(cfg.Functions, fn.toIR())
	}
	return cfg
}

func (f *functionConfig) toIR() *ir.ResourceSpec {
	spec := &ir.ResourceSpec{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Handler:     f.Handler,
		Runtime:     f.Runtime,
		Code:        ir.NewCodeLocation(f.Code),
		MemorySize:  f.MemorySize,
		Timeout:     f.Timeout,
		Environment: f.Environment,
		Tags:        f.Tags,
		Excludes:    f.Excludes,
	}
	if spec.MemorySize == 0 {
		spec.MemorySize = defaultMemorySize
	}
	if spec.Timeout == 0 {
		spec.Timeout = defaultTimeout
	}
	if f.Role != nil {
		name := f.Role.Name
		if name == "" {
			name = f.Role.ARN[strings.LastIndex(f.Role.ARN, "/")+1:]
		}
		spec.Identity = &ir.IdentityReference{Name: name, ARN: f.Role.ARN}
	}
	return spec
}
