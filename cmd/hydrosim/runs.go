package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/export"
	"github.com/san-kum/hydrosim/internal/metrics"
	"github.com/san-kum/hydrosim/internal/storage"
	"github.com/san-kum/hydrosim/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSTEPS\tNODES\tMETHOD\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Failure != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Nodes,
			run.Method,
			status,
		)
	}
	return w.Flush()
}

func loadRun(cmd *cobra.Command, id string) (*storage.RunMetadata, *dynamo.Result, error) {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	meta, err := st.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := st.LoadResult(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return meta, res, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	names := vars
	if len(names) == 0 {
		names = meta.Names
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", run.Data.Steps())

	theme := viz.GetTheme(themeName)
	for _, name := range names {
		graph, err := viz.Plot(run, []string{name}, node, viz.PlotOptions{
			Width:   width,
			Height:  height,
			Caption: fmt.Sprintf("%s at node %d", name, node),
			Theme:   theme,
		})
		if err != nil {
			fmt.Printf("%s: %v\n\n", name, err)
			continue
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func inspectRun(cmd *cobra.Command, args []string) error {
	meta, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s  %s", meta.Model, meta.ID)
	return viz.NewInspector(title, run).WithTheme(themeName).Run(cmd.Context())
}

func scoreRun(cmd *cobra.Command, args []string) error {
	_, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	scores, err := scoreAgainst(run, observed, variable, node)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, name := range metrics.Names() {
		fmt.Fprintf(w, "%s\t%.6f\n", name, scores[name])
	}
	return w.Flush()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	return withOutput(func(w io.Writer) error {
		return storage.ExportJSON(w, *meta, run)
	})
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	return withOutput(func(w io.Writer) error {
		return storage.WriteCSV(w, run)
	})
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, run, err := loadRun(cmd, args[0])
	if err != nil {
		return err
	}
	names := vars
	if len(names) == 0 {
		names = meta.Names
	}
	svg, err := export.HydrographToSVG(run, names, node, svgWidth, svgHeight)
	if err != nil {
		return err
	}
	return withOutput(func(w io.Writer) error {
		_, err := io.WriteString(w, svg)
		return err
	})
}

func withOutput(write func(io.Writer) error) error {
	if output == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported to %s\n", output)
	return nil
}
