package models

import "time"

// Payment request lifecycle. A request is created pending and settled at
// most once. Rejected is a declared terminal state with no producing
// operation yet; a future reject endpoint will use it.
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

// Account is a point balance keyed by a lowercased Ethereum-style address.
type Account struct {
	Address string `json:"address"`
	Points  int64  `json:"points"`
}

// PaymentRequest is a creditor-initiated ask for a fixed amount from a
// debtor. Creditor and debtor keys need not exist as accounts at creation.
type PaymentRequest struct {
	ID          int64     `json:"id"`
	CreditorKey string    `json:"creditor_key"`
	DebtorKey   string    `json:"debtor_key"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// MintRequest is the payload for the administrative mint endpoint.
type MintRequest struct {
	AdminSecret string `json:"admin_secret"`
	Address     string `json:"address"`
	Amount      int64  `json:"amount"`
}

// TransferRequest is the payload for a signed point transfer.
type TransferRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Signature string `json:"signature"`
}

// PaymentRequestCreate is the payload for a signed payment request.
type PaymentRequestCreate struct {
	CreditorKey string `json:"creditor_key"`
	DebtorKey   string `json:"debtor_key"`
	Amount      int64  `json:"amount"`
	Signature   string `json:"signature"`
}

// PaymentAccept is the payload for a signed acceptance of a payment request.
type PaymentAccept struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// BalanceResponse reports an account's current points. Unknown addresses
// report zero.
type BalanceResponse struct {
	Points int64 `json:"points"`
}
