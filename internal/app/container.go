// Package app wires application services with infrastructure adapters.
package app

import (
	"context"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/infrastructure/classifier"
	"github.com/shellpilot/shellpilot/internal/infrastructure/config"
	"github.com/shellpilot/shellpilot/internal/infrastructure/executor"
	"github.com/shellpilot/shellpilot/internal/infrastructure/gate"
	"github.com/shellpilot/shellpilot/internal/infrastructure/ledger"
	"github.com/shellpilot/shellpilot/internal/infrastructure/provider"
	"github.com/shellpilot/shellpilot/internal/pkg/logger"
	"github.com/shellpilot/shellpilot/internal/ports"
	"github.com/shellpilot/shellpilot/internal/services"
)

// Container holds the dependency graph for one process.
type Container struct {
	Config       domain.Config
	ConfigLoader *config.FileLoader
	Session      *services.Session
	Workflow     *services.WorkflowRunner
	Classifier   ports.Classifier
	Archive      ports.Archive
	Logger       ports.Logger
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, verbose bool) (*Container, error) {
	cfgLoader := config.NewFileLoader("")
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewStd(verbose)

	cls, err := classifier.New(cfg.Security.RulesFile)
	if err != nil {
		log.Warn("rules file rejected, using built-in rules", map[string]interface{}{"error": err.Error()})
		cls, err = classifier.New("")
		if err != nil {
			return nil, err
		}
	}

	prov, err := provider.NewFactory().ForConfig(cfg.Provider)
	if err != nil {
		return nil, err
	}

	// A broken archive costs cross-session history, not the session.
	var archive ports.Archive
	if sqliteArchive, err := ledger.NewSQLiteArchive(""); err != nil {
		log.Warn("ledger archive unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		archive = sqliteArchive
	}

	session := services.NewSession(cfg, services.Dependencies{
		Provider:   prov,
		Classifier: cls,
		Gate:       gate.New(cfg.Confirmation.Timeout.Std()),
		Executor:   executor.New(cfg.Execution.Shell, cfg.Limits.MaxOutputBytes, log),
		Ledger:     ledger.NewMemory(),
		Archive:    archive,
		Logger:     log,
	})

	workflow := services.NewWorkflowRunner(session, prov, cfg.Provider.MaxTokens, log)

	return &Container{
		Config:       cfg,
		ConfigLoader: cfgLoader,
		Session:      session,
		Workflow:     workflow,
		Classifier:   cls,
		Archive:      archive,
		Logger:       log,
	}, nil
}

// Close shuts the session down and releases the archive.
func (c *Container) Close() error {
	err := c.Session.Close()
	if c.Archive != nil {
		if closeErr := c.Archive.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
