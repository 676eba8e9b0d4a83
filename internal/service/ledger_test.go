package service_test

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointledger/pointledger/internal/auth"
	"github.com/pointledger/pointledger/internal/models"
	"github.com/pointledger/pointledger/internal/service"
	"github.com/pointledger/pointledger/internal/store"
)

const adminSecret = "test-secret"

type signer struct {
	key *ecdsa.PrivateKey
	// EIP-55 checksummed, so mixed case flows through every boundary.
	address string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s signer) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(auth.TextHash(message), s.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newTestLedger() *service.Ledger {
	return service.NewLedger(store.NewMemoryStore(), auth.NewVerifier(), auth.NewAdminGate(adminSecret), zerolog.Nop())
}

func TestLedgerEndToEnd(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a, b, c := newSigner(t), newSigner(t), newSigner(t)

	// Mint 100 to A.
	acct, err := ledger.Mint(ctx, adminSecret, a.address, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.Points)

	// A transfers 40 to B.
	msg := auth.TransferMessage(40, b.address)
	require.NoError(t, ledger.Transfer(ctx, a.address, b.address, 40, a.sign(t, msg)))

	balance, err := ledger.GetBalance(ctx, a.address)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
	balance, err = ledger.GetBalance(ctx, b.address)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	// C requests 10 from B.
	req, err := ledger.RequestPayment(ctx, c.address, b.address, 10, c.sign(t, auth.RequestPaymentMessage(10, b.address)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.ID)
	assert.Equal(t, models.RequestStatusPending, req.Status)

	// B accepts.
	acceptSig := b.sign(t, auth.AcceptPaymentMessage(req.ID))
	require.NoError(t, ledger.AcceptPayment(ctx, req.ID, b.address, acceptSig))

	balance, err = ledger.GetBalance(ctx, b.address)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)
	balance, err = ledger.GetBalance(ctx, c.address)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	settled, err := ledger.GetPaymentRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, settled.Status)

	// Accepting again conflicts and moves nothing.
	err = ledger.AcceptPayment(ctx, req.ID, b.address, acceptSig)
	assert.ErrorIs(t, err, models.ErrRequestConflict)
	balance, err = ledger.GetBalance(ctx, b.address)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	// Overdrawing transfer fails and moves nothing.
	msg = auth.TransferMessage(1000, b.address)
	err = ledger.Transfer(ctx, a.address, b.address, 1000, a.sign(t, msg))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	balance, err = ledger.GetBalance(ctx, a.address)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		ledger := newTestLedger()
		_, err := ledger.Mint(ctx, "wrong", newSigner(t).address, 100)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("empty address", func(t *testing.T) {
		ledger := newTestLedger()
		_, err := ledger.Mint(ctx, adminSecret, "  ", 100)
		assert.True(t, models.IsValidation(err))
	})

	t.Run("negative amount is an administrative debit", func(t *testing.T) {
		ledger := newTestLedger()
		addr := newSigner(t).address
		_, err := ledger.Mint(ctx, adminSecret, addr, 100)
		require.NoError(t, err)

		acct, err := ledger.Mint(ctx, adminSecret, addr, -30)
		require.NoError(t, err)
		assert.Equal(t, int64(70), acct.Points)
	})

	t.Run("negative amount still floors at zero", func(t *testing.T) {
		ledger := newTestLedger()
		addr := newSigner(t).address
		_, err := ledger.Mint(ctx, adminSecret, addr, 100)
		require.NoError(t, err)

		_, err = ledger.Mint(ctx, adminSecret, addr, -200)
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	})
}

func TestGetBalanceUnknownAddressReadsZero(t *testing.T) {
	ledger := newTestLedger()
	balance, err := ledger.GetBalance(context.Background(), newSigner(t).address)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestTransferAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong signer", func(t *testing.T) {
		ledger := newTestLedger()
		a, b := newSigner(t), newSigner(t)
		_, err := ledger.Mint(ctx, adminSecret, a.address, 100)
		require.NoError(t, err)

		msg := auth.TransferMessage(40, b.address)
		err = ledger.Transfer(ctx, a.address, b.address, 40, b.sign(t, msg))
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("signature binds the amount", func(t *testing.T) {
		ledger := newTestLedger()
		a, b := newSigner(t), newSigner(t)
		_, err := ledger.Mint(ctx, adminSecret, a.address, 100)
		require.NoError(t, err)

		sig := a.sign(t, auth.TransferMessage(40, b.address))
		err = ledger.Transfer(ctx, a.address, b.address, 41, sig)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("signature binds the recipient", func(t *testing.T) {
		ledger := newTestLedger()
		a, b, c := newSigner(t), newSigner(t), newSigner(t)
		_, err := ledger.Mint(ctx, adminSecret, a.address, 100)
		require.NoError(t, err)

		sig := a.sign(t, auth.TransferMessage(40, b.address))
		err = ledger.Transfer(ctx, a.address, c.address, 40, sig)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("malformed signature", func(t *testing.T) {
		ledger := newTestLedger()
		a, b := newSigner(t), newSigner(t)
		_, err := ledger.Mint(ctx, adminSecret, a.address, 100)
		require.NoError(t, err)

		err = ledger.Transfer(ctx, a.address, b.address, 40, "0x1234")
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a, b := newSigner(t), newSigner(t)

	tests := []struct {
		name      string
		sender    string
		recipient string
		amount    int64
	}{
		{"empty sender", "", b.address, 10},
		{"empty recipient", a.address, "", 10},
		{"zero amount", a.address, b.address, 0},
		{"negative amount", a.address, b.address, -5},
		{"self transfer", a.address, strings.ToUpper(a.address), 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.Transfer(ctx, tc.sender, tc.recipient, tc.amount, "0x00")
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestTransferUnknownSender(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a, b := newSigner(t), newSigner(t)

	msg := auth.TransferMessage(10, b.address)
	err := ledger.Transfer(ctx, a.address, b.address, 10, a.sign(t, msg))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestRequestPaymentAuthorization(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	b, c := newSigner(t), newSigner(t)

	// Signed by the debtor instead of the creditor.
	sig := b.sign(t, auth.RequestPaymentMessage(10, b.address))
	_, err := ledger.RequestPayment(ctx, c.address, b.address, 10, sig)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAcceptPaymentOnlyByDebtor(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	b, c, d := newSigner(t), newSigner(t), newSigner(t)

	_, err := ledger.Mint(ctx, adminSecret, b.address, 50)
	require.NoError(t, err)
	_, err = ledger.Mint(ctx, adminSecret, c.address, 0)
	require.NoError(t, err)

	req, err := ledger.RequestPayment(ctx, c.address, b.address, 10, c.sign(t, auth.RequestPaymentMessage(10, b.address)))
	require.NoError(t, err)

	// D signs a valid acceptance for their own address; the request still
	// belongs to B.
	err = ledger.AcceptPayment(ctx, req.ID, d.address, d.sign(t, auth.AcceptPaymentMessage(req.ID)))
	assert.ErrorIs(t, err, models.ErrForbidden)

	balance, err := ledger.GetBalance(ctx, b.address)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestAcceptPaymentUnknownRequest(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	b := newSigner(t)

	err := ledger.AcceptPayment(ctx, 42, b.address, b.sign(t, auth.AcceptPaymentMessage(42)))
	assert.ErrorIs(t, err, models.ErrRequestNotFound)
}

func TestAcceptPaymentInsufficientDebtorFunds(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	b, c := newSigner(t), newSigner(t)

	_, err := ledger.Mint(ctx, adminSecret, b.address, 5)
	require.NoError(t, err)

	req, err := ledger.RequestPayment(ctx, c.address, b.address, 10, c.sign(t, auth.RequestPaymentMessage(10, b.address)))
	require.NoError(t, err)

	err = ledger.AcceptPayment(ctx, req.ID, b.address, b.sign(t, auth.AcceptPaymentMessage(req.ID)))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestRequestPaymentCreatesParticipantAccounts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	ledger := service.NewLedger(st, auth.NewVerifier(), auth.NewAdminGate(adminSecret), zerolog.Nop())
	b, c := newSigner(t), newSigner(t)

	_, err := ledger.RequestPayment(ctx, c.address, b.address, 10, c.sign(t, auth.RequestPaymentMessage(10, b.address)))
	require.NoError(t, err)

	// Both participants now exist with zero balances; a later acceptance
	// does not have to create the creditor.
	for _, addr := range []string{c.address, b.address} {
		acct, err := st.GetAccount(ctx, strings.ToLower(addr))
		require.NoError(t, err)
		assert.Equal(t, int64(0), acct.Points)
	}
}

func TestAddressesCompareCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a := newSigner(t)

	// Mint against the uppercased form, read back lowercased.
	_, err := ledger.Mint(ctx, adminSecret, strings.ToUpper(a.address), 25)
	require.NoError(t, err)

	balance, err := ledger.GetBalance(ctx, strings.ToLower(a.address))
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)
}
