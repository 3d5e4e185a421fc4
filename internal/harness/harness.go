package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/roach88/vdb/internal/compiler"
	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
	"github.com/roach88/vdb/internal/testutil"
	"github.com/roach88/vdb/internal/value"
)

// Harness drives one binding through a scenario.
type Harness struct {
	store   *store.Store
	binding *engine.Binding
	env     *testutil.Env
	logger  *slog.Logger
}

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the binding.
//
// Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a scenario against a fresh in-memory journal and returns the
// result.
//
// Execution flow:
// 1. Open an in-memory SQLite journal
// 2. Compile the binding description
// 3. Activate the binding over the in-memory adapters
// 4. Apply steps, checking per-step expectations
// 5. Check the final expectation and evaluate trace assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	return RunWithStore(context.Background(), st, scenario, opts...)
}

// RunWithStore executes a scenario and journals its trace into st. The run
// id must not already exist in st.
func RunWithStore(ctx context.Context, st *store.Store, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	src, err := os.ReadFile(scenario.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	desc, err := compiler.CompileString(string(src), scenario.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to compile spec: %w", err)
	}

	data := desc.Model
	if scenario.Model != nil {
		if data, err = value.FromGo(scenario.Model); err != nil {
			return nil, fmt.Errorf("scenario model: %w", err)
		}
	}
	env := testutil.NewEnv(data)

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	prefix := scenario.Prefix
	if prefix == "" {
		prefix = engine.DefaultPrefix
	}

	run := store.Run{
		ID:       runID,
		SpecHash: store.SpecHash(src),
		Label:    scenario.Name,
		Options:  map[string]string{"prefix": prefix},
	}
	if err := st.WriteRun(ctx, run); err != nil {
		return nil, err
	}

	b, err := engine.New(desc.Tree,
		engine.WithRegistry(env.Registry),
		engine.WithModel(env.Model),
		engine.WithPrefix(prefix),
		engine.WithTracer(st.Tracer(ctx)),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		engine.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create binding: %w", err)
	}

	h := &Harness{store: st, binding: b, env: env, logger: o.logger}
	result := NewResult(runID)

	if err := b.Activate(); err != nil {
		return nil, fmt.Errorf("failed to activate: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != nil {
			for _, msg := range h.check(step.Expect) {
				result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
			}
		}
	}
	if scenario.Expect != nil {
		for _, msg := range h.check(scenario.Expect) {
			result.AddError("expect: " + msg)
		}
	}
	result.Render = b.Template().Render()

	trace, err := st.ReadEvents(ctx, store.Filter{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = trace

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished", "scenario", scenario.Name, "run_id", runID, "events", len(trace), "pass", result.Pass)
	return result, nil
}

// execute applies one step.
func (h *Harness) execute(step Step) error {
	b := h.binding
	switch {
	case step.SetModel != nil:
		v, err := value.FromGo(step.SetModel.Value)
		if err != nil {
			return fmt.Errorf("set_model: %w", err)
		}
		return h.env.ModelAd.Set(h.env.Model, parsePath(step.SetModel.Path), v)

	case step.SetScope != nil:
		v, err := value.FromGo(step.SetScope.Value)
		if err != nil {
			return fmt.Errorf("set_scope: %w", err)
		}
		return b.Store().Set(step.SetScope.ID, v)

	case step.SetView != nil:
		return h.input(step.SetView)

	case step.Pause:
		return b.Pause()

	case step.Resume:
		return b.Resume()

	case step.Mount:
		body := dom.NewElement("body", "")
		point := dom.NewElement("main", "mount")
		body.Append(point)
		return b.Mount(point)

	case step.Unmount:
		return b.Unmount()

	default:
		return fmt.Errorf("step has no action")
	}
}

func (h *Harness) input(s *SetView) error {
	name := s.Adapter
	if name == "" {
		name = "value"
	}
	ad, ok := h.env.ViewAdapter(name)
	if !ok {
		return fmt.Errorf("set_view: unknown view adapter %q", name)
	}

	matches := findAll(h.binding.Template(), s.Node)
	if s.Nth >= len(matches) {
		return fmt.Errorf("set_view: node %q occurrence %d not found (%d present)", s.Node, s.Nth, len(matches))
	}

	v, err := value.FromGo(s.Value)
	if err != nil {
		return fmt.Errorf("set_view: %w", err)
	}
	return ad.Input(matches[s.Nth], parsePath(s.Path), v)
}

// check compares the binding's current state with exp.
func (h *Harness) check(exp *Expectation) []string {
	var errs []string

	if exp.Render != "" {
		if got := h.binding.Template().Render(); got != exp.Render {
			errs = append(errs, fmt.Sprintf("render: expected %s, got %s", exp.Render, got))
		}
	}

	ids := make([]string, 0, len(exp.Scope))
	for id := range exp.Scope {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		got, err := value.Plain(h.binding.Store().Get(id))
		if err != nil {
			errs = append(errs, fmt.Sprintf("scope %s: %v", id, err))
			continue
		}
		if msg := compareValue(exp.Scope[id], got); msg != "" {
			errs = append(errs, fmt.Sprintf("scope %s: %s", id, msg))
		}
	}

	if exp.Model != nil {
		if msg := compareValue(exp.Model, h.env.Model.Data); msg != "" {
			errs = append(errs, "model: "+msg)
		}
	}

	sockets := make([]string, 0, len(exp.Sockets))
	for id := range exp.Sockets {
		sockets = append(sockets, id)
	}
	sort.Strings(sockets)
	for _, id := range sockets {
		handle, err := h.binding.Socket(id)
		if err != nil {
			errs = append(errs, fmt.Sprintf("socket %s: %v", id, err))
			continue
		}
		if got := handle.Instances(); got != exp.Sockets[id] {
			errs = append(errs, fmt.Sprintf("socket %s: expected %d instances, got %d", id, exp.Sockets[id], got))
		}
	}

	return errs
}

// compareValue returns an empty string when got equals the decoded YAML
// value want. A null expectation matches an undefined value.
func compareValue(want any, got value.Value) string {
	expected, err := value.FromGo(want)
	if err != nil {
		return fmt.Sprintf("invalid expectation: %v", err)
	}
	if _, isNull := expected.(value.Null); isNull && got == nil {
		return ""
	}
	if value.Equal(expected, got) {
		return ""
	}
	return fmt.Sprintf("expected %s, got %s", canonical(expected), canonical(got))
}

func canonical(v value.Value) string {
	if v == nil {
		return "undefined"
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return value.Text(v)
	}
	return string(data)
}

// parsePath splits a dotted path. The empty string is the root.
func parsePath(s string) value.Path {
	if s == "" {
		return value.Path{}
	}
	return value.Path(strings.Split(s, "."))
}

// findAll returns every element below root with the given id, in document
// order.
func findAll(root *dom.Node, id string) []*dom.Node {
	var out []*dom.Node
	var walk func(*dom.Node)
	walk = func(n *dom.Node) {
		if n.ID == id && !n.Comment {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}
