package cmd

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/providers"
	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// collaborators are the external services the router calls. Any of them
// may be nil when not configured; the router degrades to fallbacks.
type collaborators struct {
	Classifier router.Classifier
	Flows      router.FlowEngine
	Agent      router.Agent
	Services   router.Services
}

func breakerConfig(cfg *config.Config) providers.BreakerConfig {
	bc := providers.BreakerConfig{}
	if cfg.Router.BreakerMaxFailures > 0 {
		bc.MaxFailures = uint32(cfg.Router.BreakerMaxFailures)
	}
	if cfg.Router.BreakerOpenSec > 0 {
		bc.Timeout = time.Duration(cfg.Router.BreakerOpenSec) * time.Second
	}
	return bc
}

// buildCollaborators wires every configured collaborator behind its own
// circuit breaker.
func buildCollaborators(cfg *config.Config) collaborators {
	var out collaborators
	bc := breakerConfig(cfg)
	p := cfg.Providers

	var chain []router.Classifier
	if p.NLU.Configured() {
		nlu := providers.NewNLUClassifier(p.NLU.APIBase, p.NLU.APIKey)
		chain = append(chain, providers.NewBreakerClassifier("nlu", nlu, bc))
		slog.Info("registered collaborator", "name", "nlu", "api_base", p.NLU.APIBase)
	}

	if p.LLM.Configured() || p.LLM.APIKey != "" {
		llm := providers.NewOpenAIClient(p.LLM.APIKey, p.LLM.APIBase, p.LLM.Model)
		chain = append(chain, providers.NewBreakerClassifier("llm-classifier", providers.NewLLMClassifier(llm), bc))
		out.Agent = providers.NewBreakerAgent(providers.NewOpenAIAgent(llm), bc)
		slog.Info("registered collaborator", "name", "llm", "model", llm.DefaultModel())
	}
	if len(chain) > 0 {
		out.Classifier = providers.NewClassifierChain(chain...)
	}

	if p.FlowEngine.Configured() {
		fe := providers.NewFlowEngineClient(p.FlowEngine.APIBase, p.FlowEngine.APIKey)
		out.Flows = providers.NewBreakerFlowEngine(fe, bc)
		slog.Info("registered collaborator", "name", "flow_engine", "api_base", p.FlowEngine.APIBase)
	}

	if p.Business.Configured() {
		biz := providers.NewBusinessClient(p.Business.APIBase, p.Business.APIKey)
		out.Services = providers.NewBreakerServices(biz.Services(), bc)
		slog.Info("registered collaborator", "name", "business", "api_base", p.Business.APIBase)
	}

	if out.Classifier == nil {
		slog.Warn("no classifier configured, every message routes on triggers and detectors only")
	}
	return out
}
