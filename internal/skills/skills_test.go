package skills

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/circuitbreaker"
	"github.com/agentbazaar/bazaar/internal/logging"
)

type stubSkill struct {
	slug     string
	category string
	output   map[string]any
	err      error
}

func (s *stubSkill) Slug() string     { return s.slug }
func (s *stubSkill) Category() string { return s.category }
func (s *stubSkill) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return s.output, s.err
}

type stubRecorder struct {
	mu      sync.Mutex
	outputs map[string]map[string]any
	errors  map[string]string
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{
		outputs: make(map[string]map[string]any),
		errors:  make(map[string]string),
	}
}

func (r *stubRecorder) AttachOutput(ctx context.Context, transactionID string, output map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[transactionID] = output
	return nil
}

func (r *stubRecorder) AttachError(ctx context.Context, transactionID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[transactionID] = message
	return nil
}

type stubDirectory struct {
	mu    sync.Mutex
	count map[string]int
}

func (d *stubDirectory) RecordExecution(ctx context.Context, agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == nil {
		d.count = make(map[string]int)
	}
	d.count[agentID]++
	return nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubSkill{slug: "b-skill", category: "data"})
	reg.Register(&stubSkill{slug: "a-skill", category: "data"})

	if _, ok := reg.Get("a-skill"); !ok {
		t.Error("expected a-skill to be registered")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected missing slug to be absent")
	}

	slugs := reg.Slugs()
	if len(slugs) != 2 || slugs[0] != "a-skill" || slugs[1] != "b-skill" {
		t.Errorf("expected sorted slugs, got %v", slugs)
	}
}

func TestService_Execute_AttachesOutput(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubSkill{
		slug:     "test-skill",
		category: "data",
		output:   map[string]any{"result": "done"},
	})
	recorder := newStubRecorder()
	directory := &stubDirectory{}
	svc := NewService(reg, recorder, logging.Discard()).WithDirectory(directory)

	output, err := svc.Execute(context.Background(), "test-skill", "agt_1", "tx_1", map[string]any{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if output["result"] != "done" {
		t.Errorf("unexpected output %v", output)
	}
	if recorder.outputs["tx_1"]["result"] != "done" {
		t.Error("output not attached to transaction")
	}
	if directory.count["agt_1"] != 1 {
		t.Error("execution not counted for agent")
	}
}

func TestService_Execute_AttachesError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubSkill{
		slug:     "broken-skill",
		category: "data",
		err:      errors.New("provider exploded"),
	})
	recorder := newStubRecorder()
	svc := NewService(reg, recorder, logging.Discard())

	_, err := svc.Execute(context.Background(), "broken-skill", "", "tx_2", map[string]any{})
	if err == nil {
		t.Fatal("expected execution error")
	}
	if recorder.errors["tx_2"] != "provider exploded" {
		t.Errorf("error not attached, got %q", recorder.errors["tx_2"])
	}
	if _, ok := recorder.outputs["tx_2"]; ok {
		t.Error("failed execution must not attach output")
	}
}

func TestService_Execute_BreakerOpens(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubSkill{
		slug:     "flaky-skill",
		category: "data",
		err:      errors.New("provider exploded"),
	})
	recorder := newStubRecorder()
	svc := NewService(reg, recorder, logging.Discard()).
		WithBreaker(circuitbreaker.New(1, time.Minute))

	// First failure trips the circuit
	if _, err := svc.Execute(context.Background(), "flaky-skill", "", "tx_b1", map[string]any{}); err == nil {
		t.Fatal("expected execution error")
	}

	// Circuit is open, the provider must not be called again
	_, err := svc.Execute(context.Background(), "flaky-skill", "", "tx_b2", map[string]any{})
	if !errors.Is(err, ErrSkillUnavailable) {
		t.Fatalf("expected ErrSkillUnavailable, got %v", err)
	}
	if recorder.errors["tx_b2"] == "" {
		t.Error("breaker rejection must still attach an error to the transaction")
	}
}

func TestService_Execute_UnknownSkill(t *testing.T) {
	svc := NewService(NewRegistry(), newStubRecorder(), logging.Discard())

	_, err := svc.Execute(context.Background(), "ghost", "", "tx_3", nil)
	if !errors.Is(err, ErrSkillNotFound) {
		t.Fatalf("expected ErrSkillNotFound, got %v", err)
	}
}

func TestCollectionCurator(t *testing.T) {
	curator := NewCollectionCurator()

	output, err := curator.Execute(context.Background(), map[string]any{
		"theme":  "retro arcade foxes",
		"budget": "large",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if output["collection_size"] != 10000 {
		t.Errorf("expected large budget to scale collection, got %v", output["collection_size"])
	}
	tiers := output["rarity_tiers"].([]string)
	if tiers[len(tiers)-1] != "one-of-one" {
		t.Errorf("expected one-of-one tier for large budget, got %v", tiers)
	}

	_, err = curator.Execute(context.Background(), map[string]any{})
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput without theme, got %v", err)
	}
}

func TestRequireString(t *testing.T) {
	input := map[string]any{"prompt": "a fox", "count": 3, "empty": ""}

	if v, err := requireString(input, "prompt"); err != nil || v != "a fox" {
		t.Errorf("requireString(prompt) = %q, %v", v, err)
	}
	if _, err := requireString(input, "count"); !errors.Is(err, ErrMissingInput) {
		t.Error("expected non-string to be rejected")
	}
	if _, err := requireString(input, "empty"); !errors.Is(err, ErrMissingInput) {
		t.Error("expected empty string to be rejected")
	}
	if _, err := requireString(input, "absent"); !errors.Is(err, ErrMissingInput) {
		t.Error("expected absent key to be rejected")
	}

	if v := optString(input, "absent", "fallback"); v != "fallback" {
		t.Errorf("optString default = %q", v)
	}
	if v := optString(input, "prompt", "fallback"); v != "a fox" {
		t.Errorf("optString present = %q", v)
	}
}
