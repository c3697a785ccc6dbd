// Package memory is an in-process function provider. It keeps functions and
// roles in maps and is used for dry runs and tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/picklr-io/lambdasync/pkg/funcapi"
)

const (
	accountID = "000000000000"
	region    = "us-east-1"
)

// Function is the stored view of a function.
type Function struct {
	Config  funcapi.UpdateConfigInput
	ZipFile []byte
	ARN     string
	Version int
}

// Provider implements funcapi.Provider in memory.
type Provider struct {
	mu        sync.Mutex
	functions map[string]*Function
	roles     map[string]*funcapi.Role
	calls     []string
}

func New() *Provider {
	return &Provider{
		functions: make(map[string]*Function),
		roles:     make(map[string]*funcapi.Role),
	}
}

func functionARN(name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, accountID, name)
}

func (p *Provider) record(call string) {
	p.calls = append(p.calls, call)
}

// Calls returns the operations performed so far, e.g. "create:fn-a".
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Function returns a copy of the stored function, or nil.
func (p *Provider) Function(name string) *Function {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.functions[name]
	if !ok {
		return nil
	}
	c := *fn
	return &c
}

func (p *Provider) view(fn *Function) *funcapi.Function {
	sum := sha256.Sum256(fn.ZipFile)
	return &funcapi.Function{
		Name:     fn.Config.Name,
		ARN:      fn.ARN,
		Version:  strconv.Itoa(fn.Version),
		CodeSHA:  base64.StdEncoding.EncodeToString(sum[:]),
		Modified: time.Now().UTC().Format(time.RFC3339),
	}
}

func (p *Provider) CreateFunction(_ context.Context, in *funcapi.CreateFunctionInput) (*funcapi.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create:" + in.Name)

	if _, exists := p.functions[in.Name]; exists {
		return nil, fmt.Errorf("function already exist: %s", in.Name)
	}

	fn := &Function{
		Config: funcapi.UpdateConfigInput{
			Name:        in.Name,
			Description: in.Description,
			Handler:     in.Handler,
			Runtime:     in.Runtime,
			RoleARN:     in.RoleARN,
			MemorySize:  in.MemorySize,
			Timeout:     in.Timeout,
			Environment: in.Environment,
			Tags:        in.Tags,
		},
		ZipFile: in.ZipFile,
		ARN:     functionARN(in.Name),
	}
	if in.Publish {
		fn.Version = 1
	}
	p.functions[in.Name] = fn
	return p.view(fn), nil
}

func (p *Provider) UpdateFunctionCode(_ context.Context, in *funcapi.UpdateCodeInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("updateCode:" + in.Name)

	fn, ok := p.functions[in.Name]
	if !ok {
		return fmt.Errorf("function %s: %w", in.Name, funcapi.ErrNotFound)
	}
	fn.ZipFile = in.ZipFile
	fn.Version++
	return nil
}

func (p *Provider) UpdateFunctionConfiguration(_ context.Context, in *funcapi.UpdateConfigInput) (*funcapi.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("updateConfig:" + in.Name)

	fn, ok := p.functions[in.Name]
	if !ok {
		return nil, fmt.Errorf("function %s: %w", in.Name, funcapi.ErrNotFound)
	}
	fn.Config = *in
	return p.view(fn), nil
}

func (p *Provider) DeleteFunction(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete:" + name)

	if _, ok := p.functions[name]; !ok {
		return fmt.Errorf("function %s: %w", name, funcapi.ErrNotFound)
	}
	delete(p.functions, name)
	return nil
}

func (p *Provider) GetFunction(_ context.Context, name string) (*funcapi.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("get:" + name)

	fn, ok := p.functions[name]
	if !ok {
		return nil, fmt.Errorf("function %s: %w", name, funcapi.ErrNotFound)
	}
	return p.view(fn), nil
}

// ConstructRole creates the role, or returns the existing one with the
// same name.
func (p *Provider) ConstructRole(_ context.Context, in *funcapi.RoleInput) (*funcapi.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("role:" + in.Name)

	if r, ok := p.roles[in.Name]; ok {
		c := *r
		return &c, nil
	}
	r := &funcapi.Role{
		Name: in.Name,
		ARN:  fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, in.Name),
	}
	p.roles[in.Name] = r
	c := *r
	return &c, nil
}
