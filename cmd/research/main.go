// research runs one dialectical research query against a configured agent
// roster and prints the resulting answer. It is a thin driver over
// pkg/orchestrator: the core exposes run_query as a plain Go call (state.New
// + planner.Run + executor.Run), never an HTTP handler, so this binary is
// the only place in the module that owns a process lifetime.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dialectical-labs/orchestrator/pkg/config"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/agentproto"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/breaker"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/distributed"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/executor"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/gate"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/planner"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/ports"
	"github.com/dialectical-labs/orchestrator/pkg/orchestrator/state"
	"github.com/dialectical-labs/orchestrator/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("ORCHESTRATOR_CONFIG", "./deploy/orchestrator.yaml"), "path to orchestrator.yaml")
	query := flag.String("query", "", "research query to run")
	brokerAddr := flag.String("broker-addr", getEnv("BROKER_ADDR", "localhost:7070"), "address of the distributed broker server, only used when executor.broker = grpc")
	userOverride := flag.String("gate-override", getEnv("GATE_OVERRIDE", string(gate.OverrideNone)), "AUTO-mode gate override: none, exit, or debate")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	}

	if *query == "" {
		log.Fatal("missing -query")
	}

	override := gate.Override(*userOverride)
	if !override.IsValid() {
		log.Fatalf("invalid -gate-override %q: must be none, exit, or debate", *userOverride)
	}

	slog.Info("starting", "version", version.Full())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to build agent registry: %v", err)
	}

	broker, closeBroker, err := buildBroker(cfg, *brokerAddr)
	if err != nil {
		log.Fatalf("failed to build broker: %v", err)
	}
	if closeBroker != nil {
		defer closeBroker()
	}

	bus := agentproto.NewMessageBus()
	exec := executor.New(registry, bus, broker, ports.NoopTracer{}, ports.NoopMetrics{})

	qs := state.New(*query)

	plannerLLM := ports.StubLLMAdapter{}
	defaultProvider, provErr := firstLLMProvider(cfg)
	model := "stub"
	if provErr == nil {
		model = defaultProvider.Model
	}
	p := planner.NewLLMPlanner(plannerLLM, model, cfg.Budget.DefaultBudget, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	graph, err := planner.Run(ctx, p, qs)
	if err != nil {
		log.Fatalf("planning failed: %v", err)
	}

	runCfg := executor.Config{
		Mode:                executor.Mode(cfg.Executor.Mode),
		Agents:              agentNames(cfg),
		Loops:               cfg.Executor.Loops,
		MaxConcurrentAgents: cfg.Executor.MaxConcurrentAgents,
		AgentTimeout:        cfg.Executor.AgentTimeout,
		GroupDeadline:       cfg.Executor.GroupDeadline,
		DefaultTokenBudget:  cfg.Budget.DefaultBudget,
		MarginFraction:      cfg.Budget.MarginFraction,
		BreakerConfig:       breaker.Config{Threshold: cfg.Breaker.Threshold, Cooldown: cfg.Breaker.Cooldown},
		ChainOfThoughtTurns: cfg.Executor.ChainOfThoughtTurns,
		GateWeights:         gate.Weights{RetrievalOverlap: cfg.Gate.RetrievalOverlapWeight, NLIConflict: cfg.Gate.NLIConflictWeight, Complexity: cfg.Gate.ComplexityWeight},
		GateThreshold:       cfg.Gate.Threshold,
		UserOverride:        override,
		Distributed:         cfg.Executor.Broker == config.BrokerTransportGRPC,
	}

	response, err := exec.Run(ctx, qs, graph, runCfg)
	if err != nil {
		log.Fatalf("execution failed: %v", err)
	}

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal response: %v", err)
	}
	fmt.Println(string(out))
}

// buildRegistry constructs one agentproto.LLMAgent per configured agent,
// backed by a StubLLMAdapter until a real provider client is wired in
// (spec's external interfaces leave LLM adapters as caller-supplied).
func buildRegistry(cfg *config.Snapshot) (*agentproto.Registry, error) {
	var agents []agentproto.Agent
	for _, a := range cfg.Agents {
		llm := ports.StubLLMAdapter{}
		model := a.LLMProvider
		if provider, err := cfg.GetLLMProvider(a.LLMProvider); err == nil {
			model = provider.Model
		}
		agent := agentproto.NewLLMAgent(a.Name, agentproto.Role(a.Role), a.Tools, domainFromName(a), llm, model, cfg.Budget.DefaultBudget)
		agents = append(agents, agent)
	}
	return agentproto.NewRegistry(agents...), nil
}

// agentNames returns the configured agents' names in declaration order, the
// roster the executor rotates Primus across between queries.
func agentNames(cfg *config.Snapshot) []string {
	names := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		names[i] = a.Name
	}
	return names
}

// domainFromName derives a RoleDomainSpecialist's restriction domain from
// its configured name (e.g. agent "security_specialist" restricts to
// objectives mentioning "security") when no explicit field carries it.
func domainFromName(a config.AgentConfig) string {
	if a.Role != string(agentproto.RoleDomainSpecialist) {
		return ""
	}
	return strings.TrimSuffix(a.Name, "_specialist")
}

func firstLLMProvider(cfg *config.Snapshot) (config.LLMProviderConfig, error) {
	for _, p := range cfg.LLMProviders {
		return p, nil
	}
	return config.LLMProviderConfig{}, fmt.Errorf("no llm providers configured")
}

// buildBroker selects a local in-process broker or a distributed gRPC
// broker per cfg.Executor.Broker. The returned close func is nil for the
// local broker, which owns no network resources.
func buildBroker(cfg *config.Snapshot, addr string) (ports.Broker, func(), error) {
	switch cfg.Executor.Broker {
	case config.BrokerTransportGRPC:
		b, err := distributed.NewBroker(addr)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Shutdown(context.Background()); err != nil {
				slog.Warn("broker shutdown failed", "error", err)
			}
		}, nil
	default:
		return ports.NewLocalBroker(), nil, nil
	}
}
