package main

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hydrosim/internal/automation"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/storage"
)

var (
	grid      []string
	metric    string
	sweepFrom float64
	sweepTo   float64
	sweepN    int
)

func batchCommands() []*cobra.Command {
	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a YAML scenario and store the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate [model]",
		Short: "grid-search parameters against observations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  calibrate,
	}
	runFlags(calibrateCmd)
	calibrateCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter range, name=lo:hi:n or name=v1,v2 (repeatable)")
	calibrateCmd.Flags().StringVar(&metric, "metric", "nse", "objective metric")
	calibrateCmd.Flags().StringVar(&observed, "observed", "", "CSV of observations")
	calibrateCmd.Flags().StringVar(&variable, "var", "q", "variable to fit")
	calibrateCmd.Flags().IntVar(&node, "node", 0, "node to fit")
	_ = calibrateCmd.MarkFlagRequired("grid")
	_ = calibrateCmd.MarkFlagRequired("observed")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model] [param]",
		Short: "run a model across a range of one parameter",
		Args:  cobra.ExactArgs(2),
		RunE:  sweep,
	}
	runFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "first parameter value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 1, "last parameter value")
	sweepCmd.Flags().IntVar(&sweepN, "n", 5, "number of values")
	sweepCmd.Flags().StringVar(&variable, "var", "q", "variable summarised per value")
	sweepCmd.Flags().IntVar(&node, "node", 0, "node summarised per value")

	return []*cobra.Command{scenarioCmd, calibrateCmd, sweepCmd}
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := automation.RunScenario(ctx, sc, models.NewRegistry())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODEL\tRUN ID\tSTATUS")
	for _, r := range results {
		runID, err := st.Save(ctx, r.Experiment.Metadata(r.Experiment.Config().ParamSet()), r.Result)
		if err != nil {
			return err
		}
		status := "ok"
		if r.Result.Failed() {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Experiment.Config().Model, runID, status)
	}
	return w.Flush()
}

func calibrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(ctx, cfg, models.NewRegistry())
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, g := range grid {
		name, values, err := optim.ParseRange(g)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	search, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	obs, err := observedSeries(observed, variable, node)
	if err != nil {
		return err
	}
	best, err := search.Search(ctx, exp, optim.Target{Variable: variable, Node: node, Observed: obs, Metric: metric})
	if err != nil {
		return err
	}

	fmt.Printf("evaluated %d candidates\n", best.Evaluated)
	fmt.Printf("best %s: %.6f\n", metric, best.Score)
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, best.Params[name])
	}
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args[:1])
	if err != nil {
		return err
	}
	exp, err := experiment.New(ctx, cfg, models.NewRegistry())
	if err != nil {
		return err
	}
	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		ParamName: args[1],
		ParamMin:  sweepFrom,
		ParamMax:  sweepTo,
		NumSteps:  sweepN,
		Variable:  variable,
		Node:      node,
	}, exp)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tPEAK %s\tFINAL %s\tSTATUS\n", args[1], variable, variable)
	for _, r := range results {
		status := "ok"
		if r.Failed {
			status = "failed"
		}
		fmt.Fprintf(w, "%.4f\t%.4f\t%.4f\t%s\n", r.ParamValue, r.Peak, r.Final, status)
	}
	return w.Flush()
}

// observedSeries reads the column name of an observation CSV at node.
func observedSeries(path, name string, node int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, err := storage.ReadForcing(f)
	if err != nil {
		return nil, err
	}
	arr, err := obs.Array([]string{name}, node+1)
	if err != nil {
		return nil, err
	}
	return arr.Series(0, node), nil
}
