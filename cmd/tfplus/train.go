package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ChizhovVadim/tfplus/internal/data"
	"github.com/ChizhovVadim/tfplus/internal/experiment"
	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/logger"
	"github.com/ChizhovVadim/tfplus/internal/nn"
	"github.com/ChizhovVadim/tfplus/internal/options"
	"github.com/ChizhovVadim/tfplus/internal/plot"
	"github.com/ChizhovVadim/tfplus/internal/runner"
	"github.com/spf13/cobra"
)

func init() {
	options.Add("gpu", options.KindInt, -1)
	options.Add("results", options.KindString, "../results")
	options.Add("logs", options.KindString, "../logs")
	options.Add("localhost", options.KindString, "http://localhost")
	options.Add("restore_model", options.KindString, nil)
	options.Add("restore_logs", options.KindString, nil)
	options.Add("batch_size", options.KindInt, 256)
	options.Add("dataset", options.KindString, "cifar10")
	options.Add("max_steps", options.KindInt, 0)
	options.Add("seed", options.KindInt, 1234)
}

// baseModel is the part of a model that ModelBase provides.
type baseModel interface {
	nn.Model
	SetFolder(folder string)
	SetGPU(gpu int)
	RestoreOptionsFrom(folder string) error
	SaveOptions() error
}

func trainCommand(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "train",
		Short: "Train the dense classifier, logging CSV metrics and input thumbnails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := options.Default().Collect(cmd.Flags())
			if err != nil {
				return err
			}
			return train(cmd.Context(), a, opt)
		},
	}
	options.Default().BindFlags(cmd.Flags())
	return cmd
}

func train(ctx context.Context, a *app, opt options.Values) error {
	// Initialize logging/saving folder.
	var uid = nn.GenID("res_net_ex")
	var logsFolder = filepath.Join(opt.String("logs"), uid)
	log, closer, err := logger.WithFile(a.logger, logsFolder, a.level)
	if err != nil {
		return err
	}
	defer closer.Close()
	err = listener.NewLogManager(logsFolder).Register(logger.RawLogName, listener.TypePlain, "Raw Logs")
	if err != nil {
		return err
	}
	var resultsFolder = filepath.Join(opt.String("results"), uid)

	// Initialize model.
	created, err := nn.Create(nn.ClassifierName, nn.Config{
		Name:    "res_net_ex",
		Options: opt,
		Logger:  log,
		Seed:    int64(opt.Int("seed")),
	})
	if err != nil {
		return err
	}
	var model, ok = created.(baseModel)
	if !ok {
		return fmt.Errorf("model %v does not embed ModelBase", created.Name())
	}
	model.SetGPU(opt.Int("gpu"))
	model.SetFolder(resultsFolder)
	var restoreModel = opt.String("restore_model")
	if err := model.RestoreOptionsFrom(restoreModel); err != nil {
		return err
	}
	if err := model.Build(); err != nil {
		return err
	}
	if err := nn.RestoreWeightsFrom(model, restoreModel); err != nil {
		return err
	}
	if err := model.SaveOptions(); err != nil {
		return err
	}

	// Initialize data.
	var providers []*data.ConcurrentProvider
	defer func() {
		for _, p := range providers {
			p.Close()
		}
	}()
	var getData = func(split string) (data.BatchSource, error) {
		provider, err := data.Create(opt.String("dataset"), data.Config{
			Split:   split,
			Options: opt,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		var iter = data.SetIter(provider, opt.Int("batch_size"), true, split == data.SplitTrain).
			WithSeed(int64(opt.Int("seed")))
		var p = data.NewConcurrentProvider(iter, 10)
		providers = append(providers, p)
		return p, nil
	}

	e, err := newExperiment(log, model, opt, logsFolder, getData)
	if err != nil {
		return err
	}
	err = e.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("training interrupted", "step", model.GlobalStep())
		return nil
	}
	return err
}

// newExperiment wires the training schedule. Intervals and offsets count
// loop iterations; the train runner takes 10 batches per iteration.
func newExperiment(log *slog.Logger, model nn.Model, opt options.Values, logsFolder string,
	getData func(split string) (data.BatchSource, error)) (*experiment.Experiment, error) {
	trainData, err := getData(data.SplitTrain)
	if err != nil {
		return nil, err
	}
	trainvalData, err := getData(data.SplitTrain)
	if err != nil {
		return nil, err
	}
	testData, err := getData(data.SplitTest)
	if err != nil {
		return nil, err
	}
	plotData, err := getData(data.SplitTest)
	if err != nil {
		return nil, err
	}

	return experiment.New("train", log).
		SetModel(model).
		SetLogsFolder(logsFolder).
		SetLocalhost(opt.String("localhost")).
		RestoreLogs(opt.String("restore_logs")).
		SetMaxSteps(opt.Int("max_steps")).
		AddCSVOutput("Loss", []string{"train"}).
		AddCSVOutput("Accuracy", []string{"train", "valid"}).
		AddCSVOutput("Step Time", []string{"train"}).
		AddCSVOutput("Learning Rate", []string{"train"}).
		AddPlotOutput("Input", "thumbnail", plot.Config{MaxNumCol: 5}).
		AddRunner(runner.New("average").
			SetName("train").
			SetOutputs("loss", "train_step").
			AddCSVListener("Loss", "loss", "train").
			AddCSVListener("Step Time", "step_time", "train").
			AddCmdListener("Step", "step").
			AddCmdListener("Loss", "loss").
			AddCmdListener("Step Time", "step_time").
			SetDataProvider(trainData).
			SetPhaseTrain(true).
			SetNumBatch(10).
			SetInterval(1)).
		AddRunner(runner.New("saver").
			SetName("saver").
			SetInterval(100)).
		AddRunner(runner.New("average").
			SetName("trainval").
			SetOutputs("acc", "learn_rate").
			AddCSVListener("Accuracy", "acc", "train").
			AddCmdListener("Accuracy", "acc").
			AddCSVListener("Learning Rate", "learn_rate", "train").
			SetDataProvider(trainvalData).
			SetNumBatch(3).
			SetOffset(100).
			SetInterval(10)).
		AddRunner(runner.New("average").
			SetName("valid").
			SetOutputs("acc").
			AddCSVListener("Accuracy", "acc", "valid").
			AddCmdListener("Accuracy", "acc").
			SetDataProvider(testData).
			SetNumBatch(max(1, 10000/opt.Int("batch_size"))).
			SetOffset(100).
			SetInterval(100)).
		AddRunner(runner.New("basic").
			SetName("plotter").
			SetOutputs("x_trans").
			AddPlotListener("Input", map[string]string{"x_trans": "images"}).
			SetDataProvider(plotData).
			SetOffset(100).
			SetInterval(10)), nil
}
