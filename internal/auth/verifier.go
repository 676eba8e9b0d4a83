package auth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pointledger/pointledger/internal/models"
)

// Canonical message templates. Client wallets sign exactly these strings
// with personal_sign; any drift here silently breaks verification. Address
// arguments go into the message verbatim, as the caller supplied them.

func TransferMessage(amount int64, recipient string) string {
	return fmt.Sprintf("Transfer %d points to %s", amount, recipient)
}

func RequestPaymentMessage(amount int64, debtor string) string {
	return fmt.Sprintf("Request payment of %d from %s", amount, debtor)
}

func AcceptPaymentMessage(requestID int64) string {
	return fmt.Sprintf("Accept payment request %d", requestID)
}

// TextHash hashes a message the way personal_sign does: keccak256 over the
// EIP-191 prefix, the decimal message length and the message itself.
func TextHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// Verifier recovers the signing address from a personal_sign signature.
// It is stateless and pure. The signed messages carry no nonce, so a
// captured signature can be replayed; callers needing replay protection
// must bind one into the message.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// Recover decodes a hex signature and returns the address that signed
// message. Malformed input yields ErrInvalidSignature.
func (v *Verifier) Recover(message, signature string) (common.Address, error) {
	raw, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d",
			models.ErrInvalidSignature, crypto.SignatureLength, len(raw))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, raw)
	// Wallets emit V as 27/28, recovery wants 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
