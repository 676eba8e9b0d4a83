package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pointledger/pointledger/internal/auth"
	"github.com/pointledger/pointledger/internal/models"
	"github.com/pointledger/pointledger/internal/store"
)

// Ledger orchestrates the four authorized operations. It holds no state of
// its own: balances and request status live in the store, authorization in
// the gate and verifier.
//
// Address handling: canonical messages are built from the address strings
// exactly as the caller supplied them (re-casing would break signature
// recovery), while store keys and comparisons use the lowercased form.
type Ledger struct {
	store    store.Store
	verifier *auth.Verifier
	gate     *auth.AdminGate
	log      zerolog.Logger
}

func NewLedger(st store.Store, verifier *auth.Verifier, gate *auth.AdminGate, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:    st,
		verifier: verifier,
		gate:     gate,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

func canonical(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Mint credits (or, as an explicit administrative adjustment, debits)
// points on an account, creating it if absent. Authorized by the admin
// secret alone; the zero floor still holds for negative amounts.
func (l *Ledger) Mint(ctx context.Context, adminSecret, address string, amount int64) (*models.Account, error) {
	if !l.gate.Authorize(adminSecret) {
		l.log.Warn().Str("address", address).Msg("mint rejected: invalid admin secret")
		return nil, models.ErrForbidden
	}

	addr := canonical(address)
	if addr == "" {
		return nil, models.NewValidationError("address", "must be non-empty")
	}

	if _, err := l.store.GetOrCreateAccount(ctx, addr); err != nil {
		return nil, err
	}
	account, err := l.store.ApplyDelta(ctx, addr, amount)
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("address", addr).Int64("amount", amount).Int64("points", account.Points).Msg("minted points")
	return account, nil
}

// GetBalance reports an account's points; addresses with no history
// read as zero.
func (l *Ledger) GetBalance(ctx context.Context, address string) (int64, error) {
	addr := canonical(address)
	if addr == "" {
		return 0, models.NewValidationError("address", "must be non-empty")
	}

	account, err := l.store.GetAccount(ctx, addr)
	if errors.Is(err, models.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Points, nil
}

// Transfer moves points from sender to recipient, authorized by the
// sender's signature over the canonical transfer message.
func (l *Ledger) Transfer(ctx context.Context, sender, recipient string, amount int64, signature string) error {
	if canonical(sender) == "" {
		return models.NewValidationError("sender", "must be non-empty")
	}
	if canonical(recipient) == "" {
		return models.NewValidationError("recipient", "must be non-empty")
	}
	if amount <= 0 {
		return models.NewValidationError("amount", "must be a positive integer")
	}
	if canonical(sender) == canonical(recipient) {
		return models.NewValidationError("recipient", "must differ from sender")
	}

	senderAddr := canonical(sender)
	account, err := l.store.GetAccount(ctx, senderAddr)
	if err != nil {
		return err
	}
	if account.Points < amount {
		return models.ErrInsufficientFunds
	}

	recovered, err := l.verifier.Recover(auth.TransferMessage(amount, recipient), signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), sender) {
		l.log.Warn().Str("sender", senderAddr).Msg("transfer rejected: signer mismatch")
		return models.ErrForbidden
	}

	if err := l.store.Transfer(ctx, senderAddr, canonical(recipient), amount); err != nil {
		return err
	}

	l.log.Info().Str("sender", senderAddr).Str("recipient", canonical(recipient)).Int64("amount", amount).Msg("transfer completed")
	return nil
}

// RequestPayment records a pending payment request, authorized by the
// creditor's signature over the canonical request message.
func (l *Ledger) RequestPayment(ctx context.Context, creditorKey, debtorKey string, amount int64, signature string) (*models.PaymentRequest, error) {
	if canonical(creditorKey) == "" {
		return nil, models.NewValidationError("creditor_key", "must be non-empty")
	}
	if canonical(debtorKey) == "" {
		return nil, models.NewValidationError("debtor_key", "must be non-empty")
	}
	if amount <= 0 {
		return nil, models.NewValidationError("amount", "must be a positive integer")
	}

	recovered, err := l.verifier.Recover(auth.RequestPaymentMessage(amount, debtorKey), signature)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(recovered.Hex(), creditorKey) {
		l.log.Warn().Str("creditor", canonical(creditorKey)).Msg("payment request rejected: signer mismatch")
		return nil, models.ErrForbidden
	}

	// Participants are accounts from first reference on; acceptance later
	// relies on the creditor row existing.
	if _, err := l.store.GetOrCreateAccount(ctx, canonical(creditorKey)); err != nil {
		return nil, err
	}
	if _, err := l.store.GetOrCreateAccount(ctx, canonical(debtorKey)); err != nil {
		return nil, err
	}

	req, err := l.store.CreatePaymentRequest(ctx, canonical(creditorKey), canonical(debtorKey), amount)
	if err != nil {
		return nil, err
	}

	l.log.Info().Int64("request_id", req.ID).Str("creditor", req.CreditorKey).Str("debtor", req.DebtorKey).Int64("amount", amount).Msg("payment request created")
	return req, nil
}

// AcceptPayment settles a pending request: the debtor signs the canonical
// acceptance message, the debtor's balance moves to the creditor, and the
// request becomes accepted. All three mutations commit together.
func (l *Ledger) AcceptPayment(ctx context.Context, requestID int64, claimedAddress, signature string) error {
	if requestID <= 0 {
		return models.NewValidationError("request_id", "must be a positive integer")
	}
	if canonical(claimedAddress) == "" {
		return models.NewValidationError("address", "must be non-empty")
	}
	if signature == "" {
		return models.NewValidationError("signature", "must be non-empty")
	}

	recovered, err := l.verifier.Recover(auth.AcceptPaymentMessage(requestID), signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), claimedAddress) {
		l.log.Warn().Int64("request_id", requestID).Msg("acceptance rejected: signer mismatch")
		return models.ErrForbidden
	}

	req, err := l.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusPending {
		return models.ErrRequestConflict
	}
	// Only the debtor's own signature settles a request.
	if !strings.EqualFold(claimedAddress, req.DebtorKey) {
		l.log.Warn().Int64("request_id", requestID).Str("claimed", canonical(claimedAddress)).Msg("acceptance rejected: signer is not the debtor")
		return models.ErrForbidden
	}

	if err := l.store.SettlePaymentRequest(ctx, requestID); err != nil {
		return err
	}

	l.log.Info().Int64("request_id", requestID).Str("debtor", req.DebtorKey).Str("creditor", req.CreditorKey).Int64("amount", req.Amount).Msg("payment request accepted")
	return nil
}

// GetPaymentRequest returns a request by id.
func (l *Ledger) GetPaymentRequest(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	if requestID <= 0 {
		return nil, models.NewValidationError("request_id", "must be a positive integer")
	}
	return l.store.GetPaymentRequest(ctx, requestID)
}
