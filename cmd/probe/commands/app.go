package commands

import (
	"fmt"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/compare"
	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/mockapi"
	"github.com/policyprobe/policyprobe/pkg/session"
	"github.com/policyprobe/policyprobe/pkg/stores"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// app wires the engine stack from an appConfig. Every command that executes
// combinations goes through here so CLI and serve mode behave identically.
type app struct {
	cfg          appConfig
	telemetry    *telemetry.Telemetry
	catalog      *catalog.Catalog
	store        *stores.FileStore
	sessions     *session.Manager
	orchestrator *engine.Orchestrator
}

func buildApp(cfg appConfig, version string) (*app, error) {
	tel, err := telemetry.New(cfg.telemetryConfig(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	loader := catalog.NewLoader(tel.Logger)
	catalogCfg, err := loader.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	cat := catalog.New(catalogCfg)

	store, err := stores.NewFileStore(cfg.DataDir, tel.Logger)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(cfg.DataDir, session.DefaultManagerConfig(), tel)
	if err != nil {
		return nil, err
	}

	// Config-declared failure rules layer over the built-in designated
	// failure; the first matching rule wins.
	policy := engine.DefaultFailurePolicy()
	if rules := catalogCfg.FailureRules; len(rules) > 0 {
		rulePolicy, err := engine.NewRulePolicy(rules)
		if err != nil {
			return nil, err
		}
		policy = engine.ChainPolicies(rulePolicy, policy)
	}

	runnerCfg, err := cfg.runnerConfig()
	if err != nil {
		return nil, err
	}

	invoker := mockapi.NewInvoker(tel, mockapi.WithFailurePolicy(policy))
	runner := engine.NewRunner(invoker, store, tel, runnerCfg)
	orchestrator := engine.NewOrchestrator(cat, runner, store, compare.New(tel), tel)

	return &app{
		cfg:          cfg,
		telemetry:    tel,
		catalog:      cat,
		store:        store,
		sessions:     sessions,
		orchestrator: orchestrator,
	}, nil
}
