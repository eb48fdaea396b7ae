package story

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/guard"
	"github.com/safetale/safetale-sync/internal/llm"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/metrics"
)

var errNoGenerator = fmt.Errorf("%w: no generation backend configured", llm.ErrGenerationUnavailable)

// Config holds pipeline settings.
type Config struct {
	// BackendName and Model are named in the apology reply.
	BackendName string
	Model       string
	// TopK is how many lore snippets are requested.
	TopK int
	// RetrievalTimeout and GenerationTimeout bound each collaborator call.
	// Zero means no bound beyond the caller's context.
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

// DefaultConfig returns the settings used for a local Ollama backend.
func DefaultConfig() Config {
	return Config{
		BackendName:       "Ollama",
		Model:             "llama3.1:8b",
		TopK:              consts.LoreTopK,
		RetrievalTimeout:  consts.Timeout10Seconds,
		GenerationTimeout: consts.Timeout2Minutes,
	}
}

// Dependencies are the pipeline collaborators. Retriever, Guard and Metrics
// are optional.
type Dependencies struct {
	Generator Generator
	Retriever Retriever
	Guard     *guard.Guard
	Metrics   *metrics.Metrics
}

// Pipeline runs the safety, retrieval, generation and fallback stages. It is
// safe for concurrent use; each Run works on its own State.
type Pipeline struct {
	cfg       Config
	generator Generator
	retriever Retriever
	guard     *guard.Guard
	metrics   *metrics.Metrics
}

// NewPipeline creates a pipeline. Zero config fields take their defaults.
func NewPipeline(deps Dependencies, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.BackendName == "" {
		cfg.BackendName = def.BackendName
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	g := deps.Guard
	if g == nil {
		g = guard.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		generator: deps.Generator,
		retriever: deps.Retriever,
		guard:     g,
		metrics:   deps.Metrics,
	}
}

// Run executes the stages for req and returns the final state.
func (p *Pipeline) Run(ctx context.Context, req Request) *State {
	state := newState(req)

	for stage := StageStart; stage != StageEnd; stage = stage.next(state) {
		if stage == StageStart {
			continue
		}
		start := time.Now()
		p.runStage(ctx, stage, state)
		p.metrics.ObserveStage(stage.String(), time.Since(start))
		state.Trail = append(state.Trail, stage)
	}

	p.metrics.PipelineRun(outcome(state))
	return state
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, state *State) {
	switch stage {
	case StageSafety:
		p.safety(state)
	case StageRetrieval:
		p.retrieve(ctx, state)
	case StageGenerate:
		p.generate(ctx, state)
	case StageFallback:
		state.Response = FallbackReply
	}
}

// safety checks the user input and every non-blank history turn. One unsafe
// text sends the request to the fallback.
func (p *Pipeline) safety(state *State) {
	verdict := p.guard.Inspect(state.UserInput)
	for i := 0; verdict.Safe && i < len(state.History); i++ {
		if text := state.History[i].Content; strings.TrimSpace(text) != "" {
			verdict = p.guard.Inspect(text)
		}
	}
	state.SafetyPassed = verdict.Safe
	if !verdict.Safe {
		logger.Debug("Input rejected by content guard (%s %s)", verdict.Reason, verdict.Rule)
	}
}

func (p *Pipeline) retrieve(ctx context.Context, state *State) {
	if p.retriever == nil {
		return
	}

	ctx, cancel := withOptionalTimeout(ctx, p.cfg.RetrievalTimeout)
	defer cancel()

	lore, err := p.retriever.Search(ctx, state.UserInput, p.cfg.TopK)
	switch {
	case err != nil:
		state.RetrievalErr = err
		p.metrics.CollaboratorCall(metrics.Retrieval, metrics.ResultError)
		logger.Warn("Lore retrieval failed, continuing without lore: %v", err)
	case lore == "":
		p.metrics.CollaboratorCall(metrics.Retrieval, metrics.ResultEmpty)
	default:
		p.metrics.CollaboratorCall(metrics.Retrieval, metrics.ResultOK)
		state.StoryContext = strings.TrimSpace(state.StoryContext + loreHeader + lore)
	}
}

func (p *Pipeline) generate(ctx context.Context, state *State) {
	ctx, cancel := withOptionalTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	content, err := p.complete(ctx, buildMessages(state))
	switch {
	case err != nil:
		state.GenerationErr = err
		state.Response = Apology(p.cfg.BackendName, p.cfg.Model)
		p.metrics.CollaboratorCall(metrics.Generation, metrics.ResultError)
		logger.Error("Story generation failed: %v", err)
	case content == "":
		state.Response = EmptyReply
		p.metrics.CollaboratorCall(metrics.Generation, metrics.ResultEmpty)
	default:
		state.Response = content
		p.metrics.CollaboratorCall(metrics.Generation, metrics.ResultOK)
	}
}

func (p *Pipeline) complete(ctx context.Context, messages []llm.Message) (string, error) {
	if p.generator == nil {
		return "", errNoGenerator
	}
	return p.generator.Complete(ctx, messages)
}

func outcome(state *State) string {
	switch {
	case !state.SafetyPassed:
		return metrics.OutcomeFallback
	case state.GenerationErr != nil:
		return metrics.OutcomeApology
	default:
		return metrics.OutcomeGenerated
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
