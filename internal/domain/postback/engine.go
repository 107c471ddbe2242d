package postback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pointly/pointly-api/internal/domain/ledger"
	"github.com/pointly/pointly-api/internal/pkg/logger"
)

const chargebackSuffix = ":chargeback"

// Outcome is what the engine did with a postback.
type Outcome string

const (
	OutcomeCredited        Outcome = "credited"
	OutcomeReversed        Outcome = "reversed"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeInvalid         Outcome = "invalid_request"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeIPNotAllowed    Outcome = "ip_not_allowed"
	OutcomeUnknownUser     Outcome = "unknown_user"
	OutcomeFailed          Outcome = "internal_error"
)

// Rejected reports whether the provider should see its "invalid" ack.
func (o Outcome) Rejected() bool {
	switch o {
	case OutcomeInvalid, OutcomeUnauthenticated, OutcomeIPNotAllowed:
		return true
	}
	return false
}

// Store is the subset of the ledger the engine writes through.
type Store interface {
	FindTransaction(ctx context.Context, provider, externalTransID string) (*ledger.Transaction, error)
	GetUser(ctx context.Context, id uuid.UUID) (*ledger.User, error)
	CommitPostback(ctx context.Context, c *ledger.Commit) (*ledger.CommitResult, error)
	RecordFailure(ctx context.Context, f *ledger.PostbackFailure) error
}

// Inbound is a parsed postback request.
type Inbound struct {
	Params      Params
	ClientIP    string
	CallbackURL string // absolute URL as the provider called it, minus the signature
	Method      string
}

// Result is returned for every postback, whatever happened to it.
type Result struct {
	Outcome       Outcome
	TransactionID string // ledger key, with the chargeback suffix when reversed
	Points        int64  // signed balance delta applied
	Balance       int64
}

// Engine reconciles provider postbacks into the ledger.
type Engine struct {
	store  Store
	locker Locker
}

func NewEngine(store Store, locker Locker) *Engine {
	if locker == nil {
		locker = noopLocker{}
	}
	return &Engine{store: store, locker: locker}
}

// Process runs one postback through validation, authentication, idempotency
// and the atomic ledger commit. It never returns an error and never panics;
// the caller always acknowledges the provider.
func (e *Engine) Process(ctx context.Context, p *Provider, in Inbound) (res Result) {
	start := time.Now()
	l := logger.FromContext(ctx).With().Str("provider", p.Name).Str("client_ip", in.ClientIP).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("postback processing panicked")
			_, txnID := in.Params.First(p.TxnFields...)
			_, userRef := in.Params.First(p.UserFields...)
			e.recordFailure(ctx, &l, p, in, ledger.FailureInternal, fmt.Sprint(rec), txnID, userRef)
			res = Result{Outcome: OutcomeFailed}
		}
		observe(p.Name, res, time.Since(start))
	}()

	return e.process(ctx, &l, p, in)
}

func (e *Engine) process(ctx context.Context, l *zerolog.Logger, p *Provider, in Inbound) Result {
	_, userRef := in.Params.First(p.UserFields...)
	_, txnID := in.Params.First(p.TxnFields...)
	if userRef == "" || txnID == "" {
		l.Warn().Msg("postback missing user or transaction id")
		e.recordFailure(ctx, l, p, in, ledger.FailureInvalidRequest, "missing user or transaction id", txnID, userRef)
		return Result{Outcome: OutcomeInvalid}
	}

	tl := l.With().Str("trans_id", txnID).Str("user_ref", userRef).Logger()
	l = &tl

	if !p.AllowedIPs.Allows(in.ClientIP) {
		l.Warn().Msg("postback from address outside allowlist")
		e.recordFailure(ctx, l, p, in, ledger.FailureIPNotAllowed, "client ip not in allowlist", txnID, userRef)
		return Result{Outcome: OutcomeIPNotAllowed}
	}

	if err := p.Verify(in); err != nil {
		if p.Enforcement != EnforceLogOnly {
			l.Warn().Err(err).Msg("postback authentication failed")
			e.recordFailure(ctx, l, p, in, ledger.FailureUnauthenticated, err.Error(), txnID, userRef)
			return Result{Outcome: OutcomeUnauthenticated}
		}
		l.Warn().Err(err).Msg("postback authentication failed, accepting in log_only mode")
	}

	payout, err := p.Payout(in.Params)
	if err != nil {
		l.Warn().Err(err).Msg("postback amount unusable")
		e.recordFailure(ctx, l, p, in, ledger.FailureInvalidRequest, err.Error(), txnID, userRef)
		return Result{Outcome: OutcomeInvalid}
	}

	chargeback := p.IsChargeback(in.Params) || payout.Negative
	key := txnID
	var original *ledger.Transaction
	if chargeback {
		// Reversals of a known credit share one key, whatever id the
		// provider gave the chargeback itself.
		original = e.findOriginal(ctx, l, p, in.Params, txnID)
		if original != nil {
			key = original.ExternalTransID + chargebackSuffix
		} else {
			key = txnID + chargebackSuffix
		}
	}

	existing, err := e.store.FindTransaction(ctx, p.Name, key)
	if err != nil {
		return e.fail(ctx, l, p, in, err, txnID, userRef)
	}
	if existing != nil {
		l.Info().Str("key", key).Msg("duplicate postback ignored")
		return Result{Outcome: OutcomeDuplicate, TransactionID: key}
	}

	release, acquired, err := e.locker.Acquire(ctx, p.Name+":"+key)
	if err != nil {
		l.Warn().Err(err).Msg("postback lock unavailable, continuing without it")
	}
	if !acquired {
		l.Info().Str("key", key).Msg("postback already in flight, treating as duplicate")
		return Result{Outcome: OutcomeDuplicate, TransactionID: key}
	}
	defer release()

	var user *ledger.User
	if userID, perr := uuid.Parse(userRef); perr == nil {
		user, err = e.store.GetUser(ctx, userID)
		if err != nil {
			return e.fail(ctx, l, p, in, err, txnID, userRef)
		}
	}
	if user == nil {
		l.Warn().Msg("postback for unknown user")
		e.recordFailure(ctx, l, p, in, ledger.FailureUnknownUser, "user not found", txnID, userRef)
		return Result{Outcome: OutcomeUnknownUser, TransactionID: key}
	}

	delta := payout.Share.UserShare
	status := ledger.StatusSuccess
	impStatus := ledger.ImpressionCompleted
	var reverses string
	if chargeback {
		status = ledger.StatusChargeback
		impStatus = ledger.ImpressionChargeback
		if original != nil {
			delta = original.Amount
			reverses = original.ExternalTransID
		}
		delta = -delta
	}

	metadata := e.metadata(p, in, payout, reverses)
	commit := &ledger.Commit{
		Transaction: &ledger.Transaction{
			UserID:          user.ID,
			Provider:        p.Name,
			ExternalTransID: key,
			Amount:          delta,
			Status:          status,
			TaskType:        p.TaskType,
			Metadata:        metadata,
		},
		BalanceDelta: delta,
		Impression: &ledger.AdImpression{
			UserID:   user.ID,
			AdType:   p.Name,
			AdFormat: p.TaskType,
			Revenue:  delta,
			Status:   impStatus,
			Metadata: metadata,
		},
	}
	if !chargeback {
		commit.Earning = &ledger.Earning{
			UserID:      user.ID,
			Amount:      delta,
			Source:      p.Name,
			Description: fmt.Sprintf("%s %s reward", p.Name, p.TaskType),
		}
	}

	result, err := e.store.CommitPostback(ctx, commit)
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		l.Info().Str("key", key).Msg("duplicate postback lost commit race")
		return Result{Outcome: OutcomeDuplicate, TransactionID: key}
	case errors.Is(err, ledger.ErrUserNotFound):
		l.Warn().Msg("user disappeared before commit")
		e.recordFailure(ctx, l, p, in, ledger.FailureUnknownUser, "user not found at commit", txnID, userRef)
		return Result{Outcome: OutcomeUnknownUser, TransactionID: key}
	case err != nil:
		return e.fail(ctx, l, p, in, err, txnID, userRef)
	}

	if result.Balance < 0 {
		negativeBalances.WithLabelValues(p.Name).Inc()
		l.Warn().Int64("balance", result.Balance).Msg("chargeback left user with negative balance")
		e.recordFailure(ctx, l, p, in, ledger.FailureNegativeBalance,
			fmt.Sprintf("balance %d after reversal of %d", result.Balance, -delta), txnID, userRef)
	}

	outcome := OutcomeCredited
	if chargeback {
		outcome = OutcomeReversed
	}
	l.Info().
		Str("outcome", string(outcome)).
		Int64("points", delta).
		Int64("platform_share", payout.Share.PlatformShare).
		Int64("balance", result.Balance).
		Msg("postback applied")

	return Result{Outcome: outcome, TransactionID: key, Points: delta, Balance: result.Balance}
}

// findOriginal looks up the success transaction a chargeback reverses, trying
// any correlation id the provider sent before the chargeback's own id.
func (e *Engine) findOriginal(ctx context.Context, l *zerolog.Logger, p *Provider, params Params, txnID string) *ledger.Transaction {
	candidates := make([]string, 0, len(p.CorrelationFields)+1)
	for _, f := range p.CorrelationFields {
		if v := params.Get(f); v != "" {
			candidates = append(candidates, v)
		}
	}
	candidates = append(candidates, txnID)

	for _, id := range candidates {
		t, err := e.store.FindTransaction(ctx, p.Name, id)
		if err != nil {
			l.Warn().Err(err).Str("original_trans_id", id).Msg("original transaction lookup failed")
			continue
		}
		if t != nil && t.IsSuccess() {
			return t
		}
	}
	return nil
}

func (e *Engine) metadata(p *Provider, in Inbound, payout *Payout, reverses string) ledger.JSONRawMessage {
	m := map[string]any{
		"params":         in.Params,
		"client_ip":      in.ClientIP,
		"method":         in.Method,
		"amount_field":   payout.Field,
		"original":       payout.Share.OriginalAmount.String(),
		"currency":       payout.Share.Currency,
		"rate":           payout.Share.Rate,
		"total_points":   payout.Share.TotalPoints,
		"platform_share": payout.Share.PlatformShare,
	}
	if reverses != "" {
		m["reverses"] = reverses
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

func (e *Engine) fail(ctx context.Context, l *zerolog.Logger, p *Provider, in Inbound, err error, txnID, userRef string) Result {
	l.Error().Err(err).Msg("postback processing failed")
	e.recordFailure(ctx, l, p, in, ledger.FailureInternal, err.Error(), txnID, userRef)
	return Result{Outcome: OutcomeFailed}
}

// recordFailure is best effort; a failing dead-letter write is only logged.
func (e *Engine) recordFailure(ctx context.Context, l *zerolog.Logger, p *Provider, in Inbound, reason ledger.FailureReason, detail, txnID, userRef string) {
	payload, _ := json.Marshal(in.Params)
	f := &ledger.PostbackFailure{
		Provider: p.Name,
		Reason:   reason,
		Detail:   detail,
		ClientIP: in.ClientIP,
		Payload:  payload,
	}
	if txnID != "" {
		f.ExternalTransID = &txnID
	}
	if userRef != "" {
		f.UserRef = &userRef
	}
	if err := e.store.RecordFailure(ctx, f); err != nil {
		l.Error().Err(err).Str("reason", string(reason)).Msg("failed to record postback failure")
	}
}
