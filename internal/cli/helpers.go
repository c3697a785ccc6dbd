package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/picklr-io/lambdasync/internal/engine"
	"github.com/picklr-io/lambdasync/internal/eval"
	"github.com/picklr-io/lambdasync/internal/identity"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/packager"
	"github.com/picklr-io/lambdasync/internal/provider"
	"github.com/picklr-io/lambdasync/internal/state"
	"github.com/spf13/cobra"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// newRegistry is replaced in tests to share an in-memory provider.
var newRegistry = provider.NewRegistry

func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// project is a loaded configuration together with its state backend.
type project struct {
	dir        string
	configPath string
	cfg        *ir.Config
	backend    state.Backend
}

// openProject locates and loads the configuration for the first argument
// (default "."). Without requireConfig a missing config file falls back to
// the local state of the current workspace in that directory.
func openProject(ctx context.Context, args []string, props map[string]string, requireConfig bool) (*project, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	configPath, err := eval.FindConfig(abs)
	if err != nil {
		if requireConfig {
			return nil, err
		}
		return &project{
			dir:     abs,
			cfg:     &ir.Config{},
			backend: state.NewManager(filepath.Join(abs, workspaceStatePath(abs))),
		}, nil
	}

	p := &project{dir: filepath.Dir(configPath), configPath: configPath}
	p.cfg, err = eval.NewEvaluator(p.dir).LoadConfig(ctx, configPath, props)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// The default local backend follows the selected workspace.
	if b := p.cfg.Backend; b == nil || (b.Type != "s3" && b.Config["path"] == "") {
		p.backend = state.NewManager(filepath.Join(p.dir, workspaceStatePath(p.dir)))
		return p, nil
	}
	p.backend, err = state.NewBackend(ctx, p.cfg.Backend, p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state backend: %w", err)
	}
	return p, nil
}

// engineOptions are the provider flags shared by mutating commands.
type engineOptions struct {
	provider string
	region   string
	profile  string
	retries  int
}

func addEngineFlags(cmd *cobra.Command, o *engineOptions) {
	cmd.Flags().StringVar(&o.provider, "provider", "aws", "Function provider: aws or memory")
	cmd.Flags().StringVar(&o.region, "region", "", "AWS region (default from config, then the AWS environment)")
	cmd.Flags().StringVar(&o.profile, "profile", "", "AWS shared config profile")
	cmd.Flags().IntVar(&o.retries, "retries", provider.DefaultRetryMax, "Retries for transient provider errors (0 disables)")
}

// buildEngine wires the provider, retry policy, packager and state lookup
// into a reconciliation engine.
func buildEngine(ctx context.Context, p *project, o engineOptions, st *ir.State) (*engine.Engine, error) {
	region := o.region
	if region == "" {
		region = p.cfg.Region
	}

	registry := newRegistry(provider.Settings{Region: region, Profile: o.profile})
	if err := registry.LoadProvider(ctx, o.provider); err != nil {
		return nil, err
	}
	prov, err := registry.Get(o.provider)
	if err != nil {
		return nil, err
	}

	policy := provider.DefaultRetryPolicy()
	policy.MaxRetries = o.retries

	return engine.NewEngine(
		provider.WithRetry(prov, policy),
		identity.NewResolver(prov),
		engine.WithPacker(newPacker(p.dir)),
		engine.WithLookup(snapshotLookup(st)),
	), nil
}

// planEngine returns an engine that can only plan.
func planEngine(p *project, st *ir.State) *engine.Engine {
	return engine.NewEngine(nil, nil,
		engine.WithPacker(newPacker(p.dir)),
		engine.WithLookup(snapshotLookup(st)),
	)
}

func newPacker(baseDir string) *packager.Packager {
	pk := packager.New()
	pk.BaseDir = baseDir
	return pk
}

// snapshotLookup resolves references against the records as they were when
// the run started, so concurrent reconciles never read a half-written state.
func snapshotLookup(st *ir.State) engine.Lookup {
	snap := ir.NewState()
	for k, v := range st.Instances {
		snap.Instances[k] = v.Clone()
	}
	return func(name string) *ir.PriorInstance {
		return snap.Find(name)
	}
}

// selectFunctions filters configured functions by name or key.
func selectFunctions(cfg *ir.Config, targets []string) ([]*ir.ResourceSpec, error) {
	if len(targets) == 0 {
		return cfg.Functions, nil
	}
	var out []*ir.ResourceSpec
	for _, t := range targets {
		var found *ir.ResourceSpec
		for _, fn := range cfg.Functions {
			if fn.Name == t || fn.Key() == t {
				found = fn
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("function %s is not configured", t)
		}
		out = append(out, found)
	}
	return out, nil
}

// selectRecords filters state records by name or key.
func selectRecords(st *ir.State, targets []string) ([]*ir.PriorInstance, error) {
	if len(targets) == 0 {
		out := make([]*ir.PriorInstance, 0, len(st.Instances))
		for _, k := range st.Names() {
			out = append(out, st.Get(k))
		}
		return out, nil
	}
	var out []*ir.PriorInstance
	for _, t := range targets {
		inst := st.Find(t)
		if inst == nil {
			return nil, fmt.Errorf("function %s not found in state", t)
		}
		out = append(out, inst)
	}
	return out, nil
}

// confirm asks a yes/no question on in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "\n%s (y/n): ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// withLock runs fn while holding the state lock.
func withLock(b state.Backend, fn func() error) error {
	if err := b.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := b.Unlock(); err != nil {
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
	}()
	return fn()
}

// summary counts outcomes by kind.
type summary struct {
	Create, Update, Replace, NoOp int
}

func (s *summary) add(out *engine.Outcome, prior *ir.PriorInstance) {
	switch {
	case out.Decision == ir.DecisionReplace:
		s.Replace++
	case out.Decision == ir.DecisionDeploy && prior == nil:
		s.Create++
	case out.Decision == ir.DecisionDeploy:
		s.Update++
	default:
		s.NoOp++
	}
}

func (s summary) changes() int {
	return s.Create + s.Update + s.Replace
}

func renderSummary(w io.Writer, s summary) {
	fmt.Fprintln(w, "\nPlan Summary:")
	fmt.Fprintf(w, "  Create:  %d\n", s.Create)
	fmt.Fprintf(w, "  Update:  %d\n", s.Update)
	fmt.Fprintf(w, "  Replace: %d\n", s.Replace)
	fmt.Fprintf(w, "  NoOp:    %d\n", s.NoOp)
}

// fieldChange is one differing attribute between a record and the desired spec.
type fieldChange struct {
	Field         string
	Before, After string
}

// diffFields lists the compared attributes that differ, in a stable order.
func diffFields(current *ir.ResourceSpec, prior *ir.PriorInstance) []fieldChange {
	if prior == nil {
		return nil
	}
	roleName := func(r *ir.IdentityReference) string {
		if r == nil {
			return ""
		}
		return r.Name
	}

	pairs := []struct {
		field         string
		before, after any
	}{
		{"name", prior.Name, current.Name},
		{"description", prior.Description, current.Description},
		{"handler", prior.Handler, current.Handler},
		{"runtime", prior.Runtime, current.Runtime},
		{"memorySize", prior.MemorySize, current.MemorySize},
		{"timeout", prior.Timeout, current.Timeout},
		{"code", prior.Code.Paths(), current.Code.Paths()},
		{"fingerprint", prior.Fingerprint, current.Fingerprint},
		{"tags", formatMap(prior.Tags), formatMap(current.Tags)},
		{"role", roleName(prior.Identity), roleName(current.Identity)},
	}

	var out []fieldChange
	for _, p := range pairs {
		if !reflect.DeepEqual(p.before, p.after) {
			out = append(out, fieldChange{
				Field:  p.field,
				Before: formatValue(p.before),
				After:  formatValue(p.after),
			})
		}
	}
	return out
}

func formatMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "null"
		}
		return fmt.Sprintf("%q", val)
	case []string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderOutcome prints one planned or applied decision with its field diff.
func renderOutcome(w io.Writer, out *engine.Outcome, prior *ir.PriorInstance) {
	spec := out.Spec
	var symbol, color, verb string
	switch {
	case out.Decision == ir.DecisionReplace:
		symbol, color, verb = "-/+", colorYellow, "replaced"
	case out.Decision == ir.DecisionDeploy && prior == nil:
		symbol, color, verb = "+", colorGreen, "created"
	case out.Decision == ir.DecisionDeploy:
		symbol, color, verb = "~", colorYellow, "updated in place"
	default:
		return
	}
	c, reset := colorize(color), colorize(colorReset)

	fmt.Fprintf(w, "\n%s  # %s will be %s%s\n", c, spec.Key(), verb, reset)
	fmt.Fprintf(w, "%s  %s function %q {%s\n", c, symbol, spec.Name, reset)
	if prior == nil {
		fmt.Fprintf(w, "%s      + handler    = %q%s\n", c, spec.Handler, reset)
		fmt.Fprintf(w, "%s      + runtime    = %q%s\n", c, spec.Runtime, reset)
		fmt.Fprintf(w, "%s      + memorySize = %d%s\n", c, spec.MemorySize, reset)
		fmt.Fprintf(w, "%s      + timeout    = %d%s\n", c, spec.Timeout, reset)
		fmt.Fprintf(w, "%s      + code       = %s%s\n", c, formatValue(spec.Code.Paths()), reset)
	} else {
		for _, fc := range diffFields(spec, prior) {
			fmt.Fprintf(w, "%s      ~ %s = %s -> %s%s\n", c, fc.Field, fc.Before, fc.After, reset)
		}
	}
	fmt.Fprintf(w, "%s    }%s\n", c, reset)
}
