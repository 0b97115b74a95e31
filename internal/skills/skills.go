// Package skills hosts the work each marketplace agent performs once a
// payment clears. A skill takes the buyer's input fields and returns the
// output that gets attached to the transaction record.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentbazaar/bazaar/internal/circuitbreaker"
	"github.com/agentbazaar/bazaar/internal/metrics"
	"github.com/agentbazaar/bazaar/internal/syncutil"
)

var (
	ErrSkillNotFound    = errors.New("skills: no skill for that slug")
	ErrMissingInput     = errors.New("skills: required input missing")
	ErrUpstreamFailed   = errors.New("skills: upstream provider failed")
	ErrSkillUnavailable = errors.New("skills: skill temporarily unavailable")
)

// Skill performs one agent's work.
type Skill interface {
	Slug() string
	Category() string
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Registry maps slugs to skills.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill. Later registrations replace earlier ones.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Slug()] = s
}

// Get returns the skill for a slug
func (r *Registry) Get(slug string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[slug]
	return s, ok
}

// Slugs lists registered slugs in sorted order
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.skills))
	for slug := range r.skills {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// -----------------------------------------------------------------------------
// Execution service
// -----------------------------------------------------------------------------

// TransactionRecorder attaches execution results to a paid transaction.
type TransactionRecorder interface {
	AttachOutput(ctx context.Context, transactionID string, output map[string]any) error
	AttachError(ctx context.Context, transactionID, message string) error
}

// Directory resolves agents and counts their runs.
type Directory interface {
	RecordExecution(ctx context.Context, agentID string) error
}

// ExecutionSink receives a notification after every execution attempt.
// Implementations must not block.
type ExecutionSink interface {
	ExecutionFinished(agentID, transactionID string, success bool)
}

// Service runs skills and books the results on the ledger.
type Service struct {
	registry  *Registry
	recorder  TransactionRecorder
	directory Directory
	events    ExecutionSink
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger

	// One paid transaction buys one run, so concurrent executes for the
	// same transaction id are serialized.
	txLock syncutil.ContextShardedMutex
}

// NewService creates an execution service
func NewService(registry *Registry, recorder TransactionRecorder, logger *slog.Logger) *Service {
	return &Service{registry: registry, recorder: recorder, logger: logger}
}

// WithDirectory wires execution counting
func (s *Service) WithDirectory(d Directory) *Service {
	s.directory = d
	return s
}

// WithEvents wires execution notifications
func (s *Service) WithEvents(sink ExecutionSink) *Service {
	s.events = sink
	return s
}

// WithBreaker trips a per-skill circuit after repeated provider failures
// so a flaky upstream stops burning paid executions.
func (s *Service) WithBreaker(b *circuitbreaker.Breaker) *Service {
	s.breaker = b
	return s
}

// Execute runs the skill for slug and attaches the outcome to the
// transaction. The returned output is what the skill produced; the
// error reports skill failure after it has been recorded.
func (s *Service) Execute(ctx context.Context, slug, agentID, transactionID string, input map[string]any) (map[string]any, error) {
	skill, ok := s.registry.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, slug)
	}

	if transactionID != "" {
		unlock, err := s.txLock.LockContext(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	if s.breaker != nil && !s.breaker.Allow(slug) {
		err := fmt.Errorf("%w: %s", ErrSkillUnavailable, slug)
		if transactionID != "" {
			if aerr := s.recorder.AttachError(ctx, transactionID, err.Error()); aerr != nil {
				s.logger.Error("failed to record execution error",
					"transaction_id", transactionID, "error", aerr)
			}
		}
		if s.events != nil {
			s.events.ExecutionFinished(agentID, transactionID, false)
		}
		return nil, err
	}

	start := time.Now()
	output, err := skill.Execute(ctx, input)
	elapsed := time.Since(start)
	metrics.ExecutionDuration.WithLabelValues(skill.Category()).Observe(elapsed.Seconds())

	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(skill.Category(), "error").Inc()
		// Bad buyer input is not a provider fault, keep the circuit closed.
		if s.breaker != nil && !errors.Is(err, ErrMissingInput) {
			s.breaker.RecordFailure(slug)
		}
		s.logger.Error("skill execution failed",
			"slug", slug, "transaction_id", transactionID, "error", err)
		if transactionID != "" {
			if aerr := s.recorder.AttachError(ctx, transactionID, err.Error()); aerr != nil {
				s.logger.Error("failed to record execution error",
					"transaction_id", transactionID, "error", aerr)
			}
		}
		if s.events != nil {
			s.events.ExecutionFinished(agentID, transactionID, false)
		}
		return nil, err
	}

	metrics.ExecutionsTotal.WithLabelValues(skill.Category(), "success").Inc()
	if s.breaker != nil {
		s.breaker.RecordSuccess(slug)
	}
	s.logger.Info("skill executed",
		"slug", slug, "transaction_id", transactionID, "duration", elapsed)

	if transactionID != "" {
		if aerr := s.recorder.AttachOutput(ctx, transactionID, output); aerr != nil {
			s.logger.Error("failed to record execution output",
				"transaction_id", transactionID, "error", aerr)
		}
	}
	if s.directory != nil && agentID != "" {
		if derr := s.directory.RecordExecution(ctx, agentID); derr != nil {
			s.logger.Warn("failed to bump execution count",
				"agent_id", agentID, "error", derr)
		}
	}
	if s.events != nil {
		s.events.ExecutionFinished(agentID, transactionID, true)
	}

	return output, nil
}

// requireString pulls a non-empty string field from skill input.
func requireString(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingInput, key)
	}
	return s, nil
}

// optString pulls an optional string field, with a default.
func optString(input map[string]any, key, def string) string {
	if v, ok := input[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
