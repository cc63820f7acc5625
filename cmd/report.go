package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/inference-sim/faultsim/sim/experiment"
	"github.com/inference-sim/faultsim/sim/stats"
)

// writeReport prints one line per closed statistics row, columns in table order.
func writeReport(w io.Writer, e *experiment.Experiment, keyHeader string) error {
	cfg := e.Config
	fmt.Fprintf(w, "=== Simulation Statistics ===\n")
	fmt.Fprintf(w, "run_id: %s\n", e.ID)
	fmt.Fprintf(w, "seed: %d  replications: %d  horizon: %g  workers: %d\n",
		e.Stream.Key(), cfg.Replications, cfg.Horizon, e.Runner.Workers)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := e.Collector.Table().Names()
	fmt.Fprintf(tw, "%s\t%s\n", keyHeader, strings.Join(names, "\t"))
	for _, key := range e.Collector.Rows() {
		values, ok := e.Collector.Row(key)
		if !ok {
			continue
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprintf("%.6g", v.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// listKinds prints the registered process kinds and the statistic names.
func listKinds(w io.Writer) {
	fmt.Fprintln(w, "Process kinds:")
	for _, k := range experiment.NewRegistry().Kinds() {
		fmt.Fprintf(w, "  %s\n", k)
	}
	fmt.Fprintln(w, "Statistics:")
	for _, s := range stats.Names() {
		fmt.Fprintf(w, "  %s\n", s)
	}
}
