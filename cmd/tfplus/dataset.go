package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChizhovVadim/tfplus/internal/data"
	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
	"github.com/ChizhovVadim/tfplus/internal/plot"
	"github.com/spf13/cobra"
)

type datasetFlags struct {
	split string
	mode  string
	batch int
	plot  string
}

func datasetCommand(a *app) *cobra.Command {
	var f datasetFlags
	var cmd = &cobra.Command{
		Use:   "dataset <" + strings.Join(data.Factory().Names(), "|") + ">",
		Short: "Index a dataset split, report its size and plot its first batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := options.Default().Collect(cmd.Flags())
			if err != nil {
				return err
			}
			return inspectDataset(cmd.Context(), a, args[0], f, opt)
		},
	}
	cmd.Flags().StringVar(&f.split, "split", data.SplitTrain, "train, valid or test")
	cmd.Flags().StringVar(&f.mode, "mode", "", "preprocessing mode, defaults to the split")
	cmd.Flags().IntVar(&f.batch, "batch", 16, "examples in the plotted batch")
	cmd.Flags().StringVar(&f.plot, "plot", "", "write a thumbnail PNG of the first batch to this path")
	options.Default().BindFlags(cmd.Flags())
	return cmd
}

func inspectDataset(ctx context.Context, a *app, name string, f datasetFlags, opt options.Values) error {
	provider, err := data.Create(name, data.Config{
		Split:   f.split,
		Mode:    f.mode,
		Options: opt,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	size, err := provider.Size()
	if err != nil {
		return err
	}
	fmt.Printf("%v %v: %v examples\n", name, f.split, size)
	if f.plot == "" || size == 0 {
		return nil
	}

	batch, err := data.SetIter(provider, f.batch, false, false).Next(ctx)
	if err != nil {
		return err
	}
	if y, found := batch["y_gt"]; found {
		var labels = make([]int, y.Dim(0))
		for i := range labels {
			labels[i] = ml.ArgMax32(y.Item(i).Data)
		}
		fmt.Printf("labels of the first batch: %v\n", labels)
	}
	var plotter = plot.NewThumbnailPlotter(plot.Config{
		Name:     name + " " + f.split,
		Filename: filepath.Base(f.plot),
		Logs:     listener.NewLogManager(filepath.Dir(f.plot)),
	})
	if err := plotter.Listen(ml.Results{"images": batch["x"]}); err != nil {
		return err
	}
	a.logger.Info("plotted batch", "path", f.plot, "shape", batch["x"].Shape)
	return nil
}
