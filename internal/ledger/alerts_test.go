package ledger

import (
	"context"
	"testing"
)

func TestAlertChecker_LargePayment(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	checker := NewAlertChecker(alertStore)

	_ = alertStore.CreateConfig(ctx, &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "large_payment",
		Threshold: "5.000000",
		Enabled:   true,
	})

	// Below threshold, no alert
	checker.Check(ctx, &Transaction{ID: "tx_1", AgentID: "agt_1", Amount: "1.000000", Status: StatusCompleted})
	if alerts := alertStore.Alerts(); len(alerts) != 0 {
		t.Fatalf("expected 0 alerts, got %d", len(alerts))
	}

	// At threshold, should trigger
	checker.Check(ctx, &Transaction{ID: "tx_2", AgentID: "agt_1", Amount: "5.000000", Status: StatusCompleted})
	alerts := alertStore.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != "large_payment" {
		t.Errorf("expected alert_type 'large_payment', got %q", alerts[0].AlertType)
	}
	if alerts[0].TransactionID != "tx_2" {
		t.Errorf("expected transaction_id tx_2, got %q", alerts[0].TransactionID)
	}
}

func TestAlertChecker_ExecutionFailed(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	checker := NewAlertChecker(alertStore)

	_ = alertStore.CreateConfig(ctx, &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "execution_failed",
		Enabled:   true,
	})

	// Clean completion, no alert
	checker.Check(ctx, &Transaction{ID: "tx_1", AgentID: "agt_1", Amount: "1.000000", Status: StatusCompleted})
	if alerts := alertStore.Alerts(); len(alerts) != 0 {
		t.Fatalf("expected 0 alerts, got %d", len(alerts))
	}

	checker.Check(ctx, &Transaction{
		ID: "tx_2", AgentID: "agt_1", Amount: "1.000000",
		Status: StatusCompleted, ErrorMessage: "provider down",
	})
	alerts := alertStore.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != "execution_failed" {
		t.Errorf("expected alert_type 'execution_failed', got %q", alerts[0].AlertType)
	}
}

func TestAlertChecker_FiresWhenErrorAttachedAfterRecord(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	l := New(NewMemoryStore()).WithAlerts(NewAlertChecker(alertStore))

	_ = alertStore.CreateConfig(ctx, &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "execution_failed",
		Enabled:   true,
	})

	// The payment succeeds, so the transaction is recorded completed
	// and nothing triggers yet.
	tx := &Transaction{AgentID: "agt_1", UserID: "usr_1", Amount: "1.000000", Status: StatusCompleted}
	if err := l.Record(ctx, tx); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if alerts := alertStore.Alerts(); len(alerts) != 0 {
		t.Fatalf("expected 0 alerts before the skill error, got %d", len(alerts))
	}

	// The skill fails afterwards and its error lands on the record.
	if err := l.AttachError(ctx, tx.ID, "provider down"); err != nil {
		t.Fatalf("AttachError failed: %v", err)
	}
	alerts := alertStore.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert after error attached, got %d", len(alerts))
	}
	if alerts[0].AlertType != "execution_failed" {
		t.Errorf("expected alert_type 'execution_failed', got %q", alerts[0].AlertType)
	}
	if alerts[0].TransactionID != tx.ID {
		t.Errorf("expected transaction_id %s, got %q", tx.ID, alerts[0].TransactionID)
	}
}

func TestAttachError_DoesNotRefirePaymentAlerts(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	l := New(NewMemoryStore()).WithAlerts(NewAlertChecker(alertStore))

	_ = alertStore.CreateConfig(ctx, &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "large_payment",
		Threshold: "5.000000",
		Enabled:   true,
	})

	tx := &Transaction{AgentID: "agt_1", UserID: "usr_1", Amount: "10.000000", Status: StatusCompleted}
	if err := l.Record(ctx, tx); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.AttachError(ctx, tx.ID, "provider down"); err != nil {
		t.Fatalf("AttachError failed: %v", err)
	}

	// One large_payment alert from Record, none added by AttachError.
	alerts := alertStore.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertType != "large_payment" {
		t.Errorf("expected alert_type 'large_payment', got %q", alerts[0].AlertType)
	}
}

func TestAlertChecker_OtherAgentUnaffected(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	checker := NewAlertChecker(alertStore)

	_ = alertStore.CreateConfig(ctx, &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "large_payment",
		Threshold: "1.000000",
		Enabled:   true,
	})

	checker.Check(ctx, &Transaction{ID: "tx_1", AgentID: "agt_other", Amount: "100.000000", Status: StatusCompleted})
	if alerts := alertStore.Alerts(); len(alerts) != 0 {
		t.Fatalf("expected 0 alerts for unconfigured agent, got %d", len(alerts))
	}
}

func TestAlertStore_DeleteConfigDisables(t *testing.T) {
	ctx := context.Background()
	alertStore := NewMemoryAlertStore()
	checker := NewAlertChecker(alertStore)

	cfg := &AlertConfig{
		AgentID:   "agt_1",
		AlertType: "large_payment",
		Threshold: "1.000000",
		Enabled:   true,
	}
	_ = alertStore.CreateConfig(ctx, cfg)
	_ = alertStore.DeleteConfig(ctx, cfg.ID)

	checker.Check(ctx, &Transaction{ID: "tx_1", AgentID: "agt_1", Amount: "100.000000", Status: StatusCompleted})
	if alerts := alertStore.Alerts(); len(alerts) != 0 {
		t.Fatalf("expected 0 alerts after config deleted, got %d", len(alerts))
	}
}
