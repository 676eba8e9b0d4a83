package store

import (
	"context"

	"github.com/pointledger/pointledger/internal/models"
)

// Store is the durable ledger: accounts keyed by lowercased address and
// payment requests keyed by an auto-incrementing id. Every method is atomic
// with respect to concurrent callers; methods touching several rows commit
// all mutations or none, and no method ever leaves a balance negative.
//
// Callers pass canonical (lowercased) addresses; the store does not
// re-normalize.
type Store interface {
	// GetAccount returns the account or models.ErrAccountNotFound.
	GetAccount(ctx context.Context, address string) (*models.Account, error)

	// GetOrCreateAccount returns the existing account or creates it with a
	// zero balance. Idempotent.
	GetOrCreateAccount(ctx context.Context, address string) (*models.Account, error)

	// ApplyDelta atomically adds delta (which may be negative) to the
	// account's balance, creating the account if absent. Returns
	// models.ErrInsufficientFunds if the result would be negative.
	ApplyDelta(ctx context.Context, address string, delta int64) (*models.Account, error)

	// Transfer atomically debits sender and credits recipient, creating the
	// recipient on first reference. The sender's funds are re-checked under
	// lock. Sender and recipient must be distinct.
	Transfer(ctx context.Context, sender, recipient string, amount int64) error

	// CreatePaymentRequest records a pending request and assigns the next id.
	CreatePaymentRequest(ctx context.Context, creditorKey, debtorKey string, amount int64) (*models.PaymentRequest, error)

	// GetPaymentRequest returns the request or models.ErrRequestNotFound.
	GetPaymentRequest(ctx context.Context, id int64) (*models.PaymentRequest, error)

	// SettlePaymentRequest atomically debits the debtor, credits the
	// creditor and marks the request accepted. Returns
	// models.ErrRequestConflict unless the request is pending,
	// models.ErrInsufficientFunds if the debtor cannot cover the amount (an
	// absent debtor has a zero balance), and models.ErrAccountNotFound if
	// the creditor does not exist.
	SettlePaymentRequest(ctx context.Context, id int64) error

	Close()
}
