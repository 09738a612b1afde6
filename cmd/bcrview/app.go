package main

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bcrlab/bcrview/internal/config"
	"github.com/bcrlab/bcrview/internal/germline"
	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/registry"
)

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *registry.Store
	orch   *pipeline.Orchestrator
}

// newApp loads configuration and opens the registry. The orchestrator is
// built on first use.
func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	store, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open registry: %w", err)
	}
	store.SetLogger(logger.Named("registry"))

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

// orchestrator wires the aligner, germline annotator and registry into a
// gene-pair orchestrator.
func (a *app) orchestrator() *pipeline.Orchestrator {
	if a.orch != nil {
		return a.orch
	}
	aligner, name := newAligner(a.cfg.Aligner, a.logger)
	engine := msa.NewEngine(aligner)
	engine.SetLogger(a.logger.Named("msa"))

	annotator := germline.NewAnnotator(a.cfg.Germline.Dir)
	annotator.SetLogger(a.logger.Named("germline"))

	a.orch = pipeline.New(a.store, engine, annotator, nil, pipeline.Options{
		DataDir:     a.cfg.DataDir,
		Workers:     a.cfg.Workers(),
		AlignerName: name,
	})
	a.orch.SetLogger(a.logger.Named("pipeline"))
	return a.orch
}

func (a *app) Close() {
	a.store.Close()
	a.logger.Sync()
}

// newAligner returns the configured aligner and its name.
func newAligner(c config.AlignerConfig, logger *zap.Logger) (msa.Aligner, string) {
	if c.Program == config.AlignerNone {
		return msa.PadAligner{}, config.AlignerNone
	}
	m := msa.NewMAFFT()
	m.Program = c.Program
	if len(c.Args) > 0 {
		m.Args = c.Args
	}
	m.Timeout = c.Timeout
	m.SetLogger(logger.Named("mafft"))
	return m, c.Program
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
