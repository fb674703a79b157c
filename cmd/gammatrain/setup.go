package main

import (
	"flag"
	"fmt"

	"github.com/ramonehamilton/gammatrain/internal/config"
	"github.com/ramonehamilton/gammatrain/internal/corpus"
	"github.com/ramonehamilton/gammatrain/internal/extract"
	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/storage"
)

// common holds the flags every command shares.
type common struct {
	configPath string
	dbPath     string
	modelPath  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file (default: ~/.gammatrain/config.toml)")
	fs.StringVar(&c.dbPath, "db-path", "", "Database path (overrides config)")
	fs.StringVar(&c.modelPath, "model", "", "Weights file (overrides config)")
}

// env is what a command needs after flags and config are resolved.
type env struct {
	cfg      *config.Config
	registry *features.Registry
	fz       extract.Featurizer
}

func (c *common) load() (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.dbPath != "" {
		cfg.Storage.DatabasePath = c.dbPath
	}
	if c.modelPath != "" {
		cfg.Model.Path = c.modelPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reg, err := cfg.Registry.BuildRegistry()
	if err != nil {
		return nil, err
	}
	variant, err := features.ParseVariant(cfg.Registry.Variant)
	if err != nil {
		return nil, err
	}
	fz, err := extract.New(variant, reg, cfg.Registry.ExpensiveGroups)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, registry: reg, fz: fz}, nil
}

func (e *env) openDB() (*storage.DB, error) {
	path, err := e.cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.DefaultConfig(path))
}

// newBuilder starts a corpus with the configured priors and forced features.
func (e *env) newBuilder() (*corpus.Builder, error) {
	b, err := corpus.NewBuilder(e.registry)
	if err != nil {
		return nil, err
	}
	forced, err := e.cfg.Registry.ForceUsableIndices(e.registry)
	if err != nil {
		return nil, err
	}
	for _, f := range forced {
		if err := b.ForceUsable(f); err != nil {
			return nil, err
		}
	}
	return b, nil
}
