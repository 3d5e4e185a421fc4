package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/dom"
	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
	"github.com/roach88/vdb/internal/testutil"
	"github.com/roach88/vdb/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Model    string // JSON file replacing the description's model
	RunID    string
	Label    string
	Prefix   string
	NoMount  bool
	Trace    bool

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunResult is the outcome of one binding run.
type RunResult struct {
	RunID  string       `json:"run_id"`
	Render string       `json:"render"`
	Model  any          `json:"model,omitempty"`
	Events int          `json:"events"`
	Trace  []TraceEntry `json:"trace,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <spec.cue>",
		Short: "Activate a binding over an in-memory model and view",
		Long: `Compile a binding description, activate it against an in-memory model
and mount it, then print the rendered view.

The model comes from the description's "model" field unless --model names
a JSON file. With --db every trace event is journaled to a SQLite database
under a fresh run id (UUIDv7), for later inspection with "vdb trace" and
comparison with "vdb replay".

Example:
  vdb run ./testdata/specs/list.cue
  vdb run --db ./vdb.db --model items.json ./testdata/specs/list.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBinding(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default from config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "JSON file with the initial model")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id to record under (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label stored with the run")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "scope namespace prefix (default from config, else \"@\")")
	cmd.Flags().BoolVar(&opts.NoMount, "no-mount", false, "activate without mounting")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print every trace event")

	return cmd
}

func runBinding(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	ctx := commandContext(cmd)

	spec, err := LoadSpec(path)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}
	logger.Info("description compiled", "path", path)

	model := spec.Description.Model
	if opts.Model != "" {
		data, err := os.ReadFile(opts.Model)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("reading model: %v", err), nil)
		}
		if model, err = value.ParseJSON(data); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBadInput, fmt.Sprintf("parsing model: %v", err), nil)
		}
	}

	runID := opts.RunID
	if runID == "" {
		gen := opts.RunIDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		runID = gen.Generate()
	}

	params := runParams{
		Spec:      spec,
		Model:     model,
		ModelPath: opts.Model,
		RunID:     runID,
		Label:     opts.Label,
		Prefix:    opts.prefix(opts.Prefix),
		Mount:     !opts.NoMount,
		Logger:    logger,
	}
	if db := opts.database(opts.Database); db != "" {
		logger.Info("opening database", "path", db)
		st, err := store.Open(db)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("opening database: %v", err), nil)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		params.Store = st
	}

	result, err := executeRun(ctx, params)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}
	if !opts.Trace {
		result.Trace = nil
	}

	return formatter.Emit(runID, result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Run %s: %d event(s)\n", runID, result.Events)
		fmt.Fprintln(w, result.Render)
		if opts.Trace {
			fmt.Fprintln(w)
			writeTraceTable(w, result.Trace)
		}
	})
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runParams describes one binding run.
type runParams struct {
	Spec      *LoadedSpec
	Model     value.Value
	ModelPath string // recorded so the run can be replayed
	RunID     string
	Label     string
	Prefix    string
	Mount     bool
	Store     *store.Store // optional journal
	Logger    *slog.Logger
}

// executeRun activates the described binding over an in-memory model and
// view, optionally mounts it, and journals every event into p.Store when
// set. The binding is destroyed before returning; the result reflects the
// state before destruction.
func executeRun(ctx context.Context, p runParams) (result RunResult, err error) {
	env := testutil.NewEnv(p.Model)

	var events []engine.TraceEvent
	var journal engine.Tracer
	if p.Store != nil {
		options := map[string]string{"prefix": p.Prefix, "spec": p.Spec.Path}
		if p.ModelPath != "" {
			options["model"] = p.ModelPath
		}
		if !p.Mount {
			options["mount"] = "false"
		}
		run := store.Run{
			ID:       p.RunID,
			SpecHash: store.SpecHash(p.Spec.Source),
			Label:    p.Label,
			Options:  options,
		}
		if err := p.Store.WriteRun(ctx, run); err != nil {
			return RunResult{}, err
		}
		journal = p.Store.Tracer(ctx)
	}

	tracer := engine.TracerFunc(func(e engine.TraceEvent) error {
		if journal != nil {
			if err := journal.Record(e); err != nil {
				return err
			}
		}
		events = append(events, e)
		return nil
	})

	b, err := engine.New(p.Spec.Description.Tree,
		engine.WithRegistry(env.Registry),
		engine.WithModel(env.Model),
		engine.WithPrefix(p.Prefix),
		engine.WithTracer(tracer),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(p.RunID)),
		engine.WithLogger(p.Logger),
	)
	if err != nil {
		return RunResult{}, fmt.Errorf("creating binding: %w", err)
	}
	defer func() {
		if destroyErr := b.Destroy(); destroyErr != nil && err == nil {
			err = fmt.Errorf("destroying binding: %w", destroyErr)
		}
	}()

	if err := b.Activate(); err != nil {
		return RunResult{}, fmt.Errorf("activating: %w", err)
	}
	if p.Mount {
		body := dom.NewElement("body", "")
		point := dom.NewElement("main", "mount")
		body.Append(point)
		if err := b.Mount(point); err != nil {
			return RunResult{}, fmt.Errorf("mounting: %w", err)
		}
	}

	result = RunResult{
		RunID:  p.RunID,
		Render: b.Template().Render(),
		Events: len(events),
		Trace:  traceEntries(events),
	}
	if plain, err := value.Plain(env.Model.Data); err == nil && plain != nil {
		result.Model = value.ToGo(plain)
	}
	return result, nil
}
