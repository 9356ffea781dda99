package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/storage"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

var (
	dataDir     string
	storeKind   string
	metricsFile string
	trace       bool
	themeName   string

	configFile string
	preset     string
	modelFile  string
	method     string
	interp     string
	dt         float64
	steps      int
	seed       int64
	forcing    string

	members int
	spread  float64

	observed string
	variable string
	node     int
	vars     []string
	width    int
	height   int
	output   string

	svgWidth  int
	svgHeight int
)

// main registers the commands and exits with status 1 when one fails.
func main() {
	var shutdown func(context.Context) error

	rootCmd := &cobra.Command{
		Use:           "hydrosim",
		Short:         "declarative hydrological simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.SetupLogger(os.Stderr)
			cmd.SetContext(telemetry.WithLogger(cmd.Context(), logger))
			if trace {
				var err error
				if shutdown, err = telemetry.SetupTracing(os.Stderr); err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown != nil {
				if err := shutdown(cmd.Context()); err != nil {
					return err
				}
			}
			if metricsFile != "" {
				return telemetry.WriteMetrics(metricsFile)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hydrosim", "data directory")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "file", "run store: file or badger")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "print trace spans to stderr")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "river", "color theme")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a model and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModel,
	}
	runFlags(runCmd)
	runCmd.Flags().StringVar(&observed, "observed", "", "CSV of observations to score the run against")
	runCmd.Flags().StringVar(&variable, "var", "q", "variable scored against --observed")
	runCmd.Flags().IntVar(&node, "node", 0, "node scored against --observed")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "run a perturbed-parameter ensemble",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	runFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&members, "members", 8, "ensemble members")
	ensembleCmd.Flags().Float64Var(&spread, "spread", 0.1, "relative parameter spread")
	ensembleCmd.Flags().StringVar(&variable, "var", "q", "variable summarised per member")
	ensembleCmd.Flags().IntVar(&node, "node", 0, "node summarised per member")

	describeCmd := &cobra.Command{
		Use:   "describe [model]",
		Short: "show a model's units, roles and evaluation order",
		Args:  cobra.MaximumNArgs(1),
		RunE:  describeModel,
	}
	runFlags(describeCmd)

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list built-in models",
		RunE:  listModels,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&vars, "vars", nil, "variables to plot (default: all)")
	plotCmd.Flags().IntVar(&node, "node", 0, "node to plot")
	plotCmd.Flags().IntVar(&width, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&height, "height", 12, "plot height")

	inspectCmd := &cobra.Command{
		Use:   "inspect [run_id]",
		Short: "browse a run interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectRun,
	}

	scoreCmd := &cobra.Command{
		Use:   "score [run_id]",
		Short: "score a stored run against observations",
		Args:  cobra.ExactArgs(1),
		RunE:  scoreRun,
	}
	scoreCmd.Flags().StringVar(&observed, "observed", "", "CSV of observations")
	scoreCmd.Flags().StringVar(&variable, "var", "q", "variable to score")
	scoreCmd.Flags().IntVar(&node, "node", 0, "node to score")
	_ = scoreCmd.MarkFlagRequired("observed")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export a hydrograph chart as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringSliceVar(&vars, "vars", nil, "variables to draw (default: all)")
	exportSVGCmd.Flags().IntVar(&node, "node", 0, "node to draw")
	exportSVGCmd.Flags().IntVar(&svgWidth, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&svgHeight, "height", 400, "image height")
	exportSVGCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(runCmd, ensembleCmd, describeCmd, modelsCmd, presetsCmd, listCmd, plotCmd, inspectCmd, scoreCmd, exportJSONCmd, exportCSVCmd, exportSVGCmd)
	rootCmd.AddCommand(batchCommands()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&modelFile, "model-file", "", "HCL file declaring the model")
	cmd.Flags().StringVar(&method, "method", config.DefaultMethod, "solver: euler, scaled_euler, discrete, rk4 or rk45")
	cmd.Flags().StringVar(&interp, "interp", "linear", "input interpolation: linear or constant")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "spacing of the time points")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of time points")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&forcing, "forcing", "", "CSV of input series")
}

// loadConfig layers defaults, preset, config file and explicitly set flags,
// in that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := cfg.Model
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("model-file") {
		cfg.ModelFile = modelFile
	}
	if flags.Changed("method") {
		cfg.Solver.Method = method
	}
	if flags.Changed("interp") {
		cfg.Interpolation = interp
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("forcing") {
		cfg.Forcing = forcing
	}
	if flags.Lookup("members") != nil && flags.Changed("members") {
		cfg.Ensemble.Members = members
	}
	if flags.Lookup("spread") != nil && flags.Changed("spread") {
		cfg.Ensemble.Spread = spread
	}
	return cfg, nil
}

func openStore(ctx context.Context) (storage.Store, error) {
	switch storeKind {
	case "file":
		st := storage.NewFileStore(filepath.Join(dataDir, "runs"))
		if err := st.Init(); err != nil {
			return nil, err
		}
		return st, nil
	case "badger":
		return storage.OpenBadger(storage.BadgerConfig{
			Path:   filepath.Join(dataDir, "badger"),
			Logger: telemetry.FromContext(ctx),
		})
	default:
		return nil, fmt.Errorf("unknown store: %s (want file or badger)", storeKind)
	}
}
