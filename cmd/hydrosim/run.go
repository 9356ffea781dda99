package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/loader"
	"github.com/san-kum/hydrosim/internal/metrics"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/telemetry"
	"github.com/san-kum/hydrosim/internal/viz"
)

func runModel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(ctx, cfg, models.NewRegistry())
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("running %s...\n", cfg.Model)
	start := time.Now()
	res, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	meta := exp.Metadata(exp.Config().ParamSet())
	if observed != "" {
		if meta.Metrics, err = scoreAgainst(res, observed, variable, node); err != nil {
			return err
		}
	}
	runID, err := st.Save(ctx, meta, res)
	if err != nil {
		return err
	}
	telemetry.WithRunID(telemetry.FromContext(ctx), runID).Debug("run stored", "store", storeKind)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d  nodes: %d\n", res.Data.Steps(), res.Data.Nodes())
	if res.Failed() {
		fmt.Printf("solver failure: %v\n", res.Failure)
	}

	fmt.Println("\nfinal values (node 0):")
	for i, name := range res.Names {
		s := res.Data.Series(i, 0)
		fmt.Printf("  %s: %.6f\n", name, s[len(s)-1])
	}
	if len(meta.Metrics) > 0 {
		fmt.Printf("\nmetrics (%s, node %d):\n", variable, node)
		for _, name := range metrics.Names() {
			fmt.Printf("  %s: %.6f\n", name, meta.Metrics[name])
		}
	}
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Ensemble.Members == 0 {
		cfg.Ensemble.Members = members
	}
	if cfg.Ensemble.Spread == 0 {
		cfg.Ensemble.Spread = spread
	}
	exp, err := experiment.New(ctx, cfg, models.NewRegistry())
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	sets, results, err := exp.Ensemble(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d members in %v\n\n", len(results), time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MEMBER\tRUN ID\tSTATUS\tPEAK %s\tFINAL %s\n", variable, variable)
	for i, res := range results {
		runID, err := st.Save(ctx, exp.Metadata(sets[i]), res)
		if err != nil {
			return err
		}
		status := "ok"
		if res.Failed() {
			status = "failed"
		}
		peak, final := math.NaN(), math.NaN()
		if s, ok := res.Series(variable, node); ok {
			peak, final = maxOf(s), s[len(s)-1]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.4f\n", i, runID, status, peak, final)
	}
	return w.Flush()
}

func describeModel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	topo, err := cfg.Network()
	if err != nil {
		return err
	}

	var m *model.Model
	if cfg.ModelFile != "" {
		lib, err := loader.LoadFile(ctx, cfg.ModelFile, loader.Options{Topology: topo})
		if err != nil {
			return err
		}
		m, err = lib.Model(cfg.Model)
		if err != nil {
			return err
		}
	} else {
		m, err = models.NewRegistry().Build(cfg.Model, models.Options{
			Topology: topo,
			Weighted: cfg.Topology.Aggregate == "weighted",
		})
		if err != nil {
			return err
		}
	}
	return viz.Describe(os.Stdout, m, viz.GetTheme(themeName))
}

func listModels(cmd *cobra.Command, args []string) error {
	reg := models.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tNETWORK\tDESCRIPTION")
	for _, name := range reg.List() {
		e, _ := reg.Get(name)
		network := "no"
		if e.Routed {
			network = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, network, e.Description)
	}
	return w.Flush()
}

// scoreAgainst compares one simulated series with the column named name
// in the observation file.
func scoreAgainst(res *dynamo.Result, path, name string, node int) (map[string]float64, error) {
	sim, ok := res.Series(name, node)
	if !ok {
		return nil, fmt.Errorf("run has no variable %q", name)
	}
	obs, err := observedSeries(path, name, node)
	if err != nil {
		return nil, err
	}
	return metrics.ScoreAll(sim, obs)
}

func maxOf(s []float64) float64 {
	out := math.NaN()
	for _, v := range s {
		if !math.IsNaN(v) && (math.IsNaN(out) || v > out) {
			out = v
		}
	}
	return out
}
