package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/engine"
	"github.com/roach88/vdb/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Latest   bool
	Kinds    []string
	Source   string
	Sink     string
}

// TraceEntry is one journaled event.
type TraceEntry struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
	Sink   string `json:"sink,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RunSummary is the header of a journaled run.
type RunSummary struct {
	ID       string            `json:"id"`
	Label    string            `json:"label,omitempty"`
	SpecHash string            `json:"spec_hash"`
	Options  map[string]string `json:"options,omitempty"`
	Events   int               `json:"events"`
}

// TraceResult holds the events of one run.
type TraceResult struct {
	Run    RunSummary   `json:"run"`
	Events []TraceEntry `json:"events"`
	Stats  TraceStats   `json:"stats"`
}

// TraceStats counts the selected events per kind.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
}

// RunList is the output of trace without a run selection.
type RunList struct {
	Runs []RunSummary `json:"runs"`
}

var traceKinds = []engine.TraceKind{
	engine.TracePropagate,
	engine.TraceAdd,
	engine.TraceRemove,
	engine.TraceReplace,
	engine.TraceSocketInsert,
	engine.TraceSocketRemove,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled binding runs",
		Long: `Inspect the trace journal written by "vdb run --db".

Without --run or --latest the recorded runs are listed. With a run selected
its events are printed in sequence order: propagations, structural changes
(add, remove, replace) and socket insertions and removals.

Examples:
  vdb trace --db ./vdb.db
  vdb trace --db ./vdb.db --latest
  vdb trace --db ./vdb.db --run 0190... --kind add --kind remove
  vdb trace --db ./vdb.db --latest --sink text --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (default from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "print the most recent run")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only events of this kind (repeatable)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "only events with this source")
	cmd.Flags().StringVar(&opts.Sink, "sink", "", "only events with this sink")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}

	st, err := openJournal(opts.database(opts.Database))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	if opts.RunID == "" && !opts.Latest {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		list := RunList{Runs: make([]RunSummary, len(runs))}
		for i, r := range runs {
			list.Runs[i] = summarizeRun(r)
		}
		return formatter.Emit("", list, func(w io.Writer) {
			if len(list.Runs) == 0 {
				fmt.Fprintln(w, "No runs recorded")
				return
			}
			for _, r := range list.Runs {
				fmt.Fprintf(w, "%s  %4d event(s)  %s  %s\n", r.ID, r.Events, truncateID(r.SpecHash), r.Label)
			}
		})
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	events, err := st.ReadEvents(ctx, store.Filter{
		RunID:  run.ID,
		Kinds:  kinds,
		Source: opts.Source,
		Sink:   opts.Sink,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	result := TraceResult{
		Run:    summarizeRun(run),
		Events: traceEntries(events),
		Stats:  TraceStats{TotalEvents: len(events), ByKind: map[string]int{}},
	}
	for _, e := range events {
		result.Stats.ByKind[string(e.Kind)]++
	}

	return formatter.Emit(run.ID, result, func(w io.Writer) {
		fmt.Fprintf(w, "Trace for Run: %s\n", run.ID)
		if run.Label != "" {
			fmt.Fprintf(w, "Label: %s\n", run.Label)
		}
		fmt.Fprintf(w, "Spec: %s\n", truncateID(run.SpecHash))
		fmt.Fprintln(w)

		fmt.Fprintln(w, "=== Events ===")
		writeTraceTable(w, result.Events)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "=== Stats ===")
		fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
		for _, k := range sortedKinds(result.Stats.ByKind) {
			fmt.Fprintf(w, "  %-14s %d\n", k+":", result.Stats.ByKind[k])
		}
	})
}

// openJournal opens an existing trace database. It never creates one.
func openJournal(path string) (*store.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("no database: pass --db or set db in the config file")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func parseKinds(names []string) ([]engine.TraceKind, error) {
	var out []engine.TraceKind
	for _, name := range names {
		kind := engine.TraceKind(name)
		found := false
		for _, k := range traceKinds {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown trace kind %q", name)
		}
		out = append(out, kind)
	}
	return out, nil
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		ID:       r.ID,
		Label:    r.Label,
		SpecHash: r.SpecHash,
		Options:  r.Options,
		Events:   r.Events,
	}
}

func traceEntries(events []engine.TraceEvent) []TraceEntry {
	out := make([]TraceEntry, len(events))
	for i, e := range events {
		out[i] = TraceEntry{
			Seq:    e.Seq,
			Kind:   string(e.Kind),
			Source: e.Source,
			Sink:   e.Sink,
			Key:    e.Key,
			Value:  e.Value,
		}
	}
	return out
}

// writeTraceTable prints one line per event.
func writeTraceTable(w io.Writer, entries []TraceEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  [%d] %s\n", e.Seq, formatEntry(e))
	}
}

// formatEntry renders an event as "kind field=value ...", omitting empty
// fields.
func formatEntry(e TraceEntry) string {
	parts := []string{e.Kind}
	for _, f := range []struct{ name, v string }{
		{"source", e.Source},
		{"sink", e.Sink},
		{"key", e.Key},
		{"value", e.Value},
	} {
		if f.v != "" {
			parts = append(parts, f.name+"="+f.v)
		}
	}
	return strings.Join(parts, " ")
}

func sortedKinds(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
