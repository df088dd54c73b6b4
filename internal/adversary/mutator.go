package adversary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/llm"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
)

const (
	defaultEvolutionInterval = 24 * time.Hour
	defaultCheckInterval     = time.Hour
	defaultTopFailures       = 5
	defaultMinConfidence     = 0.5

	evolutionTimeout     = 30 * time.Second
	evolutionTemperature = 0.8

	promptStartMarker = "[PROMPT_START]"
	promptEndMarker   = "[PROMPT_END]"
)

const mutatorSystemPrompt = "You are an AI prompt engineer specializing in improving " +
	"behavioral analysis systems. Analyze failures and rewrite " +
	"system prompts to improve accuracy."

// Symmetry guard vocabulary. An evolved prompt must keep risk and
// chain-of-thought language and must not introduce a dangerous pattern.
var (
	stopLossTerms     = []string{"stop", "risk", "loss", "risk management"}
	cotTerms          = []string{"reasoning", "explain", "step-by-step", "chain-of-thought"}
	dangerousPatterns = []string{"no stop", "ignore risk", "unlimited loss", "all in", "no risk management"}
)

// FailureSource provides the worst audited predictions
type FailureSource interface {
	Failed(ctx context.Context, limit int, minConfidence float64) ([]ledger.Prediction, error)
}

// MutatorConfig configures the prompt evolution cycle
type MutatorConfig struct {
	Interval      time.Duration
	CheckInterval time.Duration
	TopFailures   int
	MinConfidence float64

	// Timeout bounds one evolution call; zero selects the 30s default
	Timeout time.Duration
}

// Mutator evolves the analyst's system prompt from audited prediction
// failures, guarded so risk language can never be mutated away
type Mutator struct {
	cfg      MutatorConfig
	store    *PromptStore
	client   Reasoner
	failures FailureSource

	mu            sync.Mutex
	lastEvolution time.Time

	now func() time.Time
}

// NewMutator creates an evolutionary mutator
func NewMutator(cfg MutatorConfig, store *PromptStore, client Reasoner, failures FailureSource) *Mutator {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultEvolutionInterval
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.TopFailures <= 0 {
		cfg.TopFailures = defaultTopFailures
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = evolutionTimeout
	}
	return &Mutator{cfg: cfg, store: store, client: client, failures: failures, now: time.Now}
}

// Run checks for due evolutions until the context ends
func (m *Mutator) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", m.cfg.Interval).
		Int("prompt_version", m.store.Version()).
		Msg("Evolutionary mutator started")

	for {
		if _, err := m.Evolve(ctx, false); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Prompt evolution cycle failed")
			metrics.RecordError("cycle", "mutator")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.CheckInterval):
		}
	}
}

// Evolve runs one mutation cycle: collect the worst failures, ask the
// LLM to rewrite the current prompt, screen the rewrite through the
// symmetry guard, and install it as the next version. Returns whether a
// new version was installed.
func (m *Mutator) Evolve(ctx context.Context, force bool) (bool, error) {
	m.mu.Lock()
	last := m.lastEvolution
	m.mu.Unlock()

	if !force && !last.IsZero() {
		elapsed := m.now().Sub(last)
		if elapsed < m.cfg.Interval {
			log.Debug().
				Dur("since_last", elapsed).
				Dur("interval", m.cfg.Interval).
				Msg("Skipping prompt evolution, interval not elapsed")
			return false, nil
		}
	}

	if m.client == nil {
		log.Warn().Msg("No LLM client configured, skipping prompt evolution")
		return false, nil
	}

	failures, err := m.failures.Failed(ctx, m.cfg.TopFailures, m.cfg.MinConfidence)
	if err != nil {
		return false, fmt.Errorf("failed to collect failed predictions: %w", err)
	}
	if len(failures) == 0 {
		log.Info().Msg("No failed predictions to learn from, skipping evolution")
		return false, nil
	}

	current, err := m.store.Current()
	if err != nil {
		return false, err
	}

	log.Info().Int("failures", len(failures)).Msg("Starting prompt evolution cycle")

	completion, err := m.client.Complete(ctx, mutatorSystemPrompt,
		buildEvolutionPrompt(current, failures),
		&llm.CallOptions{Temperature: evolutionTemperature, MaxTokens: 2000, Timeout: m.cfg.Timeout})
	if err != nil {
		return false, fmt.Errorf("prompt evolution request failed: %w", err)
	}

	candidate := ExtractPrompt(completion.Content)
	if err := CheckSymmetry(candidate); err != nil {
		log.Error().Err(err).Msg("Evolved prompt failed symmetry guard, rejecting")
		return false, nil
	}

	version, err := m.store.Install(candidate)
	if err != nil {
		return false, fmt.Errorf("failed to install evolved prompt: %w", err)
	}

	m.mu.Lock()
	m.lastEvolution = m.now()
	m.mu.Unlock()

	log.Info().
		Int("version", version).
		Int("failures_analyzed", len(failures)).
		Msg("Prompt evolved")
	return true, nil
}

// LastEvolution returns when the last successful evolution finished
func (m *Mutator) LastEvolution() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvolution
}

// ExtractPrompt pulls the rewritten prompt from between the response
// markers, falling back to the whole response when they are absent
func ExtractPrompt(response string) string {
	start := strings.Index(response, promptStartMarker)
	end := strings.Index(response, promptEndMarker)
	if start >= 0 && end > start {
		return strings.TrimSpace(response[start+len(promptStartMarker) : end])
	}
	return strings.TrimSpace(response)
}

// CheckSymmetry enforces the symmetry guard on an evolved prompt: risk
// vocabulary and chain-of-thought instructions must survive mutation,
// and no dangerous pattern may appear. Matching is case-insensitive
// substring.
func CheckSymmetry(prompt string) error {
	lower := strings.ToLower(prompt)

	if !containsAny(lower, stopLossTerms) {
		return fmt.Errorf("prompt missing stop-loss or risk management vocabulary")
	}
	if !containsAny(lower, cotTerms) {
		return fmt.Errorf("prompt missing chain-of-thought requirement")
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("dangerous pattern %q detected", pattern)
		}
	}
	return nil
}

func buildEvolutionPrompt(current string, failures []ledger.Prediction) string {
	var b strings.Builder
	for i, f := range failures {
		if i >= defaultTopFailures {
			break
		}
		actual := 0.0
		if f.ActualPrice1h != nil {
			actual = *f.ActualPrice1h
		}
		fmt.Fprintf(&b, `
FAILURE #%d:
- Predicted Bias: %s
- Predicted Outcome: %s
- Archetype: %s
- Signal: %s
- Confidence: %g
- Price at Prediction: $%g
- Actual Price (1h): $%g
- Success Score: %.2f
`, i+1, f.PredictedBias, f.PredictedOutcome, f.Archetype, f.Signal,
			f.Confidence, f.PriceAtPrediction, actual, f.AvgScore)
	}

	return fmt.Sprintf(`CURRENT ADVERSARY SYSTEM PROMPT:
%s

TOP FAILED PREDICTIONS:
%s
TASK:
Analyze why these psychological predictions failed. Then rewrite the
system prompt to refine threshold sensitivities for FOMO and Panic
detection.

REQUIREMENTS:
1. Maintain Chain-of-Thought reasoning requirement
2. Keep all safety rules (no trading without stops)
3. Adjust detection thresholds based on failures
4. Improve contextual inference logic
5. Keep the prompt concise and actionable

OUTPUT:
Provide the complete rewritten system prompt between %s and %s tags.`,
		current, b.String(), promptStartMarker, promptEndMarker)
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
