package payment

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentbazaar/bazaar/internal/logging"
	"github.com/agentbazaar/bazaar/internal/wallet"
)

const (
	testPlatformWallet = "0x9999999999999999999999999999999999999999"
	testChainID        = int64(137)
	testTxHash         = "0xfeed000000000000000000000000000000000000000000000000000000000001"
)

type fakeConnector struct {
	connected bool
	chainID   int64
}

func (f *fakeConnector) Connected() bool { return f.connected }
func (f *fakeConnector) ChainID() int64  { return f.chainID }

type fakeTransferor struct {
	mu          sync.Mutex
	transferErr error
	confirmErr  error
	gate        chan struct{} // when set, Transfer blocks until closed
	transfers   int
	lastAmount  *big.Int
}

func (f *fakeTransferor) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	f.mu.Lock()
	f.transfers++
	f.lastAmount = amount
	gate := f.gate
	err := f.transferErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return testTxHash, nil
}

func (f *fakeTransferor) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmErr
}

type fakeLedger struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (f *fakeLedger) RecordPayment(ctx context.Context, rec Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.records = append(f.records, rec)
	return "tx_recorded", nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeExecutor struct {
	mu     sync.Mutex
	slug   string
	txID   string
	called chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{called: make(chan struct{})}
}

func (f *fakeExecutor) Execute(ctx context.Context, agentSlug, transactionID string, input map[string]any) error {
	f.mu.Lock()
	f.slug = agentSlug
	f.txID = transactionID
	f.mu.Unlock()
	close(f.called)
	return nil
}

func validRequest() Request {
	return Request{
		AgentID:       "agt_artist",
		AgentSlug:     "neural-artist",
		UserID:        "usr_buyer",
		Price:         "0.05",
		Input:         map[string]any{"prompt": "a fox in a datacenter"},
		TermsAccepted: true,
	}
}

func newOrchestrator(conn *fakeConnector, tr *fakeTransferor, led *fakeLedger, exec Executor, opts ...Option) *Orchestrator {
	return New(conn, tr, led, exec, testPlatformWallet, testChainID, logging.Discard(), opts...)
}

func TestPay_Success(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{}
	led := &fakeLedger{}
	exec := newFakeExecutor()
	o := newOrchestrator(conn, tr, led, exec)

	result, err := o.Pay(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if o.State() != StateSuccess {
		t.Errorf("expected success state, got %s", o.State())
	}
	if result.TransactionID != "tx_recorded" {
		t.Errorf("unexpected transaction ID %q", result.TransactionID)
	}
	if result.Price != "0.050000" || result.Fee != "0.003500" || result.Total != "0.053500" {
		t.Errorf("unexpected charge breakdown: %s + %s = %s", result.Price, result.Fee, result.Total)
	}
	if result.RedirectURL != "/transactions/tx_recorded" {
		t.Errorf("unexpected redirect %q", result.RedirectURL)
	}
	if result.RedirectAfter != RedirectDelay {
		t.Errorf("unexpected redirect delay %s", result.RedirectAfter)
	}

	// Total charge moved on chain, exactly one ledger record.
	if tr.lastAmount.Cmp(big.NewInt(53_500)) != 0 {
		t.Errorf("expected 53500 minor units transferred, got %s", tr.lastAmount)
	}
	if led.count() != 1 {
		t.Fatalf("expected exactly 1 ledger record, got %d", led.count())
	}
	if led.records[0].TxHash != testTxHash || led.records[0].Amount != "0.053500" {
		t.Errorf("unexpected record: %+v", led.records[0])
	}

	// Execution fires after recording.
	select {
	case <-exec.called:
	case <-time.After(2 * time.Second):
		t.Fatal("execution trigger never fired")
	}
	if exec.slug != "neural-artist" || exec.txID != "tx_recorded" {
		t.Errorf("unexpected execution args: %s %s", exec.slug, exec.txID)
	}
}

func TestPay_Guards(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Request, *fakeConnector)
		wantCode FailureCode
	}{
		{
			name:     "no user",
			mutate:   func(r *Request, c *fakeConnector) { r.UserID = "" },
			wantCode: FailureAuthenticationRequired,
		},
		{
			name:     "wallet not connected",
			mutate:   func(r *Request, c *fakeConnector) { c.connected = false },
			wantCode: FailureWalletNotConnected,
		},
		{
			name:     "wrong network",
			mutate:   func(r *Request, c *fakeConnector) { c.chainID = 1 },
			wantCode: FailureWrongNetwork,
		},
		{
			name:     "terms not accepted",
			mutate:   func(r *Request, c *fakeConnector) { r.TermsAccepted = false },
			wantCode: FailureTermsNotAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConnector{connected: true, chainID: testChainID}
			tr := &fakeTransferor{}
			led := &fakeLedger{}
			o := newOrchestrator(conn, tr, led, nil)

			req := validRequest()
			tt.mutate(&req, conn)

			_, err := o.Pay(context.Background(), req)
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("expected *Failure, got %v", err)
			}
			if f.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, f.Code)
			}
			// Guard failures keep the session on the form.
			if o.State() != StateForm {
				t.Errorf("expected form state, got %s", o.State())
			}
			if tr.transfers != 0 {
				t.Error("guard failure must not submit a transfer")
			}
			if led.count() != 0 {
				t.Error("guard failure must not reach the ledger")
			}
		})
	}
}

func TestPay_UserRejected(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{transferErr: &wallet.TransferError{Op: "send", Err: wallet.ErrUserRejected}}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	_, err := o.Pay(context.Background(), validRequest())
	var f *Failure
	if !errors.As(err, &f) || f.Code != FailureUserRejected {
		t.Fatalf("expected user_rejected failure, got %v", err)
	}

	// Rejection returns the buyer to the form, not the error screen.
	if o.State() != StateForm {
		t.Errorf("expected form state after rejection, got %s", o.State())
	}
	if led.count() != 0 {
		t.Error("rejected payment must not be recorded")
	}

	// The session is immediately usable again.
	tr.mu.Lock()
	tr.transferErr = nil
	tr.mu.Unlock()
	if _, err := o.Pay(context.Background(), validRequest()); err != nil {
		t.Fatalf("retry after rejection failed: %v", err)
	}
}

func TestPay_SubmissionFailed(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{transferErr: errors.New("nonce too low")}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	_, err := o.Pay(context.Background(), validRequest())
	var f *Failure
	if !errors.As(err, &f) || f.Code != FailureSubmissionFailed {
		t.Fatalf("expected submission_failed, got %v", err)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
	if led.count() != 0 {
		t.Error("failed submission must not be recorded")
	}
}

func TestPay_ConfirmationFailed(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{confirmErr: &wallet.TransferError{Op: "confirm", TxHash: testTxHash, Err: wallet.ErrTransactionReverted}}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	_, err := o.Pay(context.Background(), validRequest())
	var f *Failure
	if !errors.As(err, &f) || f.Code != FailureConfirmationFailed {
		t.Fatalf("expected confirmation_failed, got %v", err)
	}
	if f.TxHash != testTxHash {
		t.Errorf("failure should carry the tx hash, got %q", f.TxHash)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
	if led.count() != 0 {
		t.Error("reverted transfer must not be recorded")
	}
}

func TestPay_ConfirmationTimeout(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{confirmErr: wallet.ErrTimeout}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	_, err := o.Pay(context.Background(), validRequest())
	var f *Failure
	if !errors.As(err, &f) || f.Code != FailureConfirmationTimeout {
		t.Fatalf("expected confirmation_timeout, got %v", err)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
	if !strings.Contains(f.Message, "may still land") {
		t.Errorf("timeout message should warn the transfer may still land: %q", f.Message)
	}
}

func TestPay_LedgerRecordingFailed(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{}
	led := &fakeLedger{err: errors.New("database down")}
	o := newOrchestrator(conn, tr, led, nil)

	_, err := o.Pay(context.Background(), validRequest())
	var f *Failure
	if !errors.As(err, &f) || f.Code != FailureLedgerRecordingFailed {
		t.Fatalf("expected ledger_recording_failed, got %v", err)
	}

	// Funds left the wallet even though recording failed.
	if !f.FundsMoved {
		t.Error("FundsMoved must be set when the transfer confirmed")
	}
	if f.TxHash != testTxHash {
		t.Errorf("failure should carry the tx hash, got %q", f.TxHash)
	}
	if o.State() != StateError {
		t.Errorf("expected error state, got %s", o.State())
	}
}

func TestPay_InvalidPrice(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{}
	o := newOrchestrator(conn, tr, &fakeLedger{}, nil)

	req := validRequest()
	req.Price = "free"

	_, err := o.Pay(context.Background(), req)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if tr.transfers != 0 {
		t.Error("invalid price must not submit a transfer")
	}
}

func TestPay_RejectsConcurrentAttempt(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	gate := make(chan struct{})
	tr := &fakeTransferor{gate: gate}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Pay(context.Background(), validRequest())
		done <- err
	}()

	// Wait until the first attempt is in flight.
	deadline := time.After(2 * time.Second)
	for o.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("first attempt never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := o.Pay(context.Background(), validRequest()); !errors.Is(err, ErrPaymentInProgress) {
		t.Fatalf("expected ErrPaymentInProgress, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}
	if led.count() != 1 {
		t.Errorf("expected exactly 1 record, got %d", led.count())
	}
}

func TestReset_DiscardsInFlightAttempt(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	gate := make(chan struct{})
	tr := &fakeTransferor{gate: gate}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Pay(context.Background(), validRequest())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for o.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("attempt never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Supersede the attempt while its transfer is still in flight.
	o.Reset()
	close(gate)

	if err := <-done; err == nil {
		t.Fatal("superseded attempt should not report success")
	}

	// The stale attempt must not touch session state or the ledger.
	if o.State() != StateForm {
		t.Errorf("expected form state after reset, got %s", o.State())
	}
	if led.count() != 0 {
		t.Errorf("superseded attempt must not be recorded, got %d records", led.count())
	}
}

func TestPay_TerminalStateRequiresReset(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{transferErr: errors.New("nonce too low")}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	if _, err := o.Pay(context.Background(), validRequest()); err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	if o.State() != StateError {
		t.Fatalf("expected error state, got %s", o.State())
	}

	// Submitting straight from the error state is rejected; the retry
	// path goes through the form.
	if _, err := o.Pay(context.Background(), validRequest()); !errors.Is(err, ErrSessionNotOnForm) {
		t.Fatalf("expected ErrSessionNotOnForm, got %v", err)
	}

	o.Reset()
	tr.mu.Lock()
	tr.transferErr = nil
	tr.mu.Unlock()
	if _, err := o.Pay(context.Background(), validRequest()); err != nil {
		t.Fatalf("retry after Reset failed: %v", err)
	}
	if led.count() != 1 {
		t.Errorf("expected exactly 1 record, got %d", led.count())
	}
}

func TestPay_RejectedAfterSuccessWithoutReset(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{}
	led := &fakeLedger{}
	o := newOrchestrator(conn, tr, led, nil)

	if _, err := o.Pay(context.Background(), validRequest()); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if o.State() != StateSuccess {
		t.Fatalf("expected success state, got %s", o.State())
	}

	if _, err := o.Pay(context.Background(), validRequest()); !errors.Is(err, ErrSessionNotOnForm) {
		t.Fatalf("expected ErrSessionNotOnForm, got %v", err)
	}
	if led.count() != 1 {
		t.Errorf("completed session must not double-record, got %d", led.count())
	}
}

func TestReset_ClearsFailure(t *testing.T) {
	conn := &fakeConnector{connected: true, chainID: testChainID}
	tr := &fakeTransferor{transferErr: errors.New("boom")}
	o := newOrchestrator(conn, tr, &fakeLedger{}, nil)

	o.Pay(context.Background(), validRequest())
	if o.LastFailure() == nil {
		t.Fatal("expected a recorded failure")
	}

	o.Reset()
	if o.State() != StateForm {
		t.Errorf("expected form state, got %s", o.State())
	}
	if o.LastFailure() != nil {
		t.Error("Reset should clear the last failure")
	}
}
