// Package payment drives a marketplace payment from checkout form to
// recorded transaction. It owns the state machine a purchase moves
// through and coordinates the wallet, ledger and execution trigger.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/agentbazaar/bazaar/internal/metrics"
	"github.com/agentbazaar/bazaar/internal/usdc"
	"github.com/agentbazaar/bazaar/internal/wallet"
)

// -----------------------------------------------------------------------------
// States
// -----------------------------------------------------------------------------

// State is the phase a payment session is in.
type State string

const (
	// StateForm shows the checkout form. Guard failures keep the
	// session here so the buyer can fix the problem and retry.
	StateForm State = "form"
	// StateProcessing covers transfer submission.
	StateProcessing State = "processing"
	// StateConfirming covers waiting for the on-chain confirmation.
	StateConfirming State = "confirming"
	// StateSuccess is terminal for a recorded payment.
	StateSuccess State = "success"
	// StateError is terminal for a failed attempt until Reset.
	StateError State = "error"
)

// -----------------------------------------------------------------------------
// Failures
// -----------------------------------------------------------------------------

// FailureCode classifies why a payment attempt did not complete.
type FailureCode string

const (
	FailureAuthenticationRequired FailureCode = "authentication_required"
	FailureWalletNotConnected     FailureCode = "wallet_not_connected"
	FailureWrongNetwork           FailureCode = "wrong_network"
	FailureTermsNotAccepted       FailureCode = "terms_not_accepted"
	FailureUserRejected           FailureCode = "user_rejected"
	FailureSubmissionFailed       FailureCode = "submission_failed"
	FailureConfirmationFailed     FailureCode = "confirmation_failed"
	FailureConfirmationTimeout    FailureCode = "confirmation_timeout"
	FailureLedgerRecordingFailed  FailureCode = "ledger_recording_failed"
)

// Failure describes a failed or blocked payment attempt.
// FundsMoved is set when USDC left the buyer's wallet but the
// marketplace could not record the transaction.
type Failure struct {
	Code       FailureCode
	Message    string
	TxHash     string
	FundsMoved bool
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("payment: %s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

var (
	// ErrPaymentInProgress is returned when Pay is called while an
	// attempt is already running.
	ErrPaymentInProgress = errors.New("payment: another payment is in progress")
	// ErrInvalidPrice is returned for an unparseable or non-positive price.
	ErrInvalidPrice = errors.New("payment: invalid price")
	// ErrSessionNotOnForm is returned when Pay is called from a terminal
	// state. Submission is only valid from the form; Reset first.
	ErrSessionNotOnForm = errors.New("payment: session must return to the form before paying again")

	errStaleAttempt = errors.New("payment: attempt superseded")
)

// -----------------------------------------------------------------------------
// Collaborator interfaces
// -----------------------------------------------------------------------------

// Connector reports the buyer's wallet session.
type Connector interface {
	Connected() bool
	ChainID() int64
}

// Transferor moves USDC on chain.
type Transferor interface {
	Transfer(ctx context.Context, to string, amount *big.Int) (txHash string, err error)
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) error
}

// Ledger records a confirmed transfer as a marketplace transaction.
type Ledger interface {
	RecordPayment(ctx context.Context, rec Record) (transactionID string, err error)
}

// Executor triggers the purchased agent run. Called fire-and-forget
// after the transaction is recorded.
type Executor interface {
	Execute(ctx context.Context, agentSlug, transactionID string, input map[string]any) error
}

// Record is what the ledger needs to persist a payment.
type Record struct {
	AgentID string
	UserID  string
	Amount  string // total charged, price plus platform fee
	TxHash  string
	Input   map[string]any
}

// -----------------------------------------------------------------------------
// Request / Result
// -----------------------------------------------------------------------------

// Request is one checkout submission.
type Request struct {
	AgentID       string
	AgentSlug     string
	UserID        string
	Price         string // per-task price in USDC
	Input         map[string]any
	TermsAccepted bool
}

// Result is a completed payment.
type Result struct {
	TransactionID string
	TxHash        string
	Price         string
	Fee           string
	Total         string
	RedirectURL   string
	RedirectAfter time.Duration
}

// -----------------------------------------------------------------------------
// Orchestrator
// -----------------------------------------------------------------------------

const (
	// ConfirmationTimeout bounds the wait for on-chain confirmation.
	ConfirmationTimeout = 120 * time.Second
	// RedirectDelay is how long the success screen shows before the
	// buyer is sent to the transaction page.
	RedirectDelay = 2 * time.Second
)

// Orchestrator runs payments one at a time. Each call to Pay is an
// attempt; superseded attempts (after Reset) cannot touch session
// state or reach the ledger.
type Orchestrator struct {
	connector  Connector
	transferor Transferor
	ledger     Ledger
	executor   Executor
	logger     *slog.Logger

	platformWallet      string
	chainID             int64
	confirmationTimeout time.Duration
	redirectDelay       time.Duration

	mu      sync.Mutex
	state   State
	attempt uint64
	failure *Failure
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithConfirmationTimeout overrides the confirmation wait bound.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.confirmationTimeout = d }
}

// WithRedirectDelay overrides the success redirect delay.
func WithRedirectDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.redirectDelay = d }
}

// New creates a payment orchestrator. platformWallet is the address
// that receives the full charge; chainID is the network payments must
// settle on.
func New(connector Connector, transferor Transferor, ledger Ledger, executor Executor, platformWallet string, chainID int64, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		connector:           connector,
		transferor:          transferor,
		ledger:              ledger,
		executor:            executor,
		logger:              logger,
		platformWallet:      platformWallet,
		chainID:             chainID,
		confirmationTimeout: ConfirmationTimeout,
		redirectDelay:       RedirectDelay,
		state:               StateForm,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastFailure returns the most recent failure, if any.
func (o *Orchestrator) LastFailure() *Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// Reset returns the session to the form and invalidates any attempt
// still in flight. In-flight work keeps running but its results are
// discarded and nothing is recorded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempt++
	o.state = StateForm
	o.failure = nil
}

// Pay runs one payment attempt to completion. On success the returned
// Result carries the transaction ID and the redirect the UI should
// perform after RedirectAfter. On failure the returned error is a
// *Failure; guard failures leave the session on the form, flow
// failures move it to the error state until Reset. A session in a
// terminal state must Reset to the form before submitting again.
func (o *Orchestrator) Pay(ctx context.Context, req Request) (*Result, error) {
	attempt, failure, err := o.begin(req)
	if err != nil {
		return nil, err
	}
	if failure != nil {
		metrics.PaymentsTotal.WithLabelValues(string(failure.Code)).Inc()
		return nil, failure
	}

	start := time.Now()
	result, payErr := o.run(ctx, attempt, req)
	metrics.PaymentDuration.Observe(time.Since(start).Seconds())

	if payErr != nil {
		var f *Failure
		if errors.As(payErr, &f) {
			metrics.PaymentsTotal.WithLabelValues(string(f.Code)).Inc()
		}
		return nil, payErr
	}

	metrics.PaymentsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// begin validates guards and claims the session for a new attempt.
func (o *Orchestrator) begin(req Request) (uint64, *Failure, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateProcessing, StateConfirming:
		return 0, nil, ErrPaymentInProgress
	case StateSuccess, StateError:
		// Retry means error -> form first; Reset performs that move.
		return 0, nil, ErrSessionNotOnForm
	}

	// Guards keep the session on the form.
	if f := o.checkGuards(req); f != nil {
		o.state = StateForm
		o.failure = f
		return 0, f, nil
	}

	o.attempt++
	o.state = StateProcessing
	o.failure = nil
	return o.attempt, nil, nil
}

func (o *Orchestrator) checkGuards(req Request) *Failure {
	if req.UserID == "" {
		return &Failure{
			Code:    FailureAuthenticationRequired,
			Message: "sign in before paying",
		}
	}
	if !o.connector.Connected() {
		return &Failure{
			Code:    FailureWalletNotConnected,
			Message: "connect a wallet before paying",
		}
	}
	if o.connector.ChainID() != o.chainID {
		return &Failure{
			Code:    FailureWrongNetwork,
			Message: fmt.Sprintf("switch the wallet to chain %d", o.chainID),
		}
	}
	if !req.TermsAccepted {
		return &Failure{
			Code:    FailureTermsNotAccepted,
			Message: "accept the terms of service",
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, attempt uint64, req Request) (*Result, error) {
	price, ok := usdc.Parse(req.Price)
	if !ok || price.Sign() <= 0 {
		f := &Failure{
			Code:    FailureSubmissionFailed,
			Message: fmt.Sprintf("invalid price %q", req.Price),
			Err:     ErrInvalidPrice,
		}
		o.fail(attempt, f)
		return nil, f
	}
	fee := usdc.Fee(price)
	total := usdc.Total(price)

	// Submit the transfer for the full charge.
	txHash, err := o.transferor.Transfer(ctx, o.platformWallet, total)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			// The buyer declined the signature. Back to the form.
			f := &Failure{
				Code:    FailureUserRejected,
				Message: "signature rejected in wallet",
				Err:     err,
			}
			o.returnToForm(attempt, f)
			return nil, f
		}
		f := &Failure{
			Code:    FailureSubmissionFailed,
			Message: "transfer could not be submitted",
			TxHash:  txHash,
			Err:     err,
		}
		o.fail(attempt, f)
		return nil, f
	}

	if !o.transition(attempt, StateConfirming) {
		o.logger.Warn("discarding superseded payment attempt",
			"attempt", attempt, "tx_hash", txHash)
		return nil, errStaleAttempt
	}

	// Wait for the transfer to land on chain.
	if err := o.transferor.WaitForConfirmation(ctx, txHash, o.confirmationTimeout); err != nil {
		code := FailureConfirmationFailed
		msg := "transaction failed on chain"
		if errors.Is(err, wallet.ErrTimeout) {
			code = FailureConfirmationTimeout
			msg = "confirmation timed out; the transfer may still land"
		}
		f := &Failure{Code: code, Message: msg, TxHash: txHash, Err: err}
		o.fail(attempt, f)
		return nil, f
	}

	if o.stale(attempt) {
		o.logger.Warn("confirmed transfer belongs to a superseded attempt, not recording",
			"attempt", attempt, "tx_hash", txHash)
		return nil, errStaleAttempt
	}

	// Record exactly one transaction for the confirmed transfer.
	transactionID, err := o.ledger.RecordPayment(ctx, Record{
		AgentID: req.AgentID,
		UserID:  req.UserID,
		Amount:  usdc.Format(total),
		TxHash:  txHash,
		Input:   req.Input,
	})
	if err != nil {
		f := &Failure{
			Code:       FailureLedgerRecordingFailed,
			Message:    "payment succeeded but could not be recorded; contact support",
			TxHash:     txHash,
			FundsMoved: true,
			Err:        err,
		}
		o.fail(attempt, f)
		return nil, f
	}

	if !o.transition(attempt, StateSuccess) {
		// Recorded but superseded. The transaction exists; the session
		// just won't show it.
		o.logger.Warn("payment recorded for superseded attempt",
			"attempt", attempt, "transaction_id", transactionID)
		return nil, errStaleAttempt
	}

	o.logger.Info("payment complete",
		"transaction_id", transactionID,
		"agent_id", req.AgentID,
		"amount", usdc.Format(total),
		"tx_hash", txHash)
	metrics.FeesCollectedUSDC.Add(float64(fee.Int64()) / 1e6)

	// Kick off the agent run. Failures surface on the transaction
	// record, never on the payment.
	o.triggerExecution(req.AgentSlug, transactionID, req.Input)

	return &Result{
		TransactionID: transactionID,
		TxHash:        txHash,
		Price:         usdc.Format(price),
		Fee:           usdc.Format(fee),
		Total:         usdc.Format(total),
		RedirectURL:   "/transactions/" + transactionID,
		RedirectAfter: o.redirectDelay,
	}, nil
}

func (o *Orchestrator) triggerExecution(agentSlug, transactionID string, input map[string]any) {
	if o.executor == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := o.executor.Execute(ctx, agentSlug, transactionID, input); err != nil {
			o.logger.Error("execution trigger failed",
				"agent_slug", agentSlug,
				"transaction_id", transactionID,
				"error", err)
		}
	}()
}

// transition moves the session to next if the attempt is still current.
func (o *Orchestrator) transition(attempt uint64, next State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if attempt != o.attempt {
		return false
	}
	o.state = next
	return true
}

// fail moves the session to the error state if the attempt is current.
func (o *Orchestrator) fail(attempt uint64, f *Failure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if attempt != o.attempt {
		return
	}
	o.state = StateError
	o.failure = f
}

// returnToForm keeps the session usable after a user rejection.
func (o *Orchestrator) returnToForm(attempt uint64, f *Failure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if attempt != o.attempt {
		return
	}
	o.state = StateForm
	o.failure = f
}

func (o *Orchestrator) stale(attempt uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return attempt != o.attempt
}
