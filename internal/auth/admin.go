package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// AdminGate validates the shared secret that authorizes mint operations.
type AdminGate struct {
	secretSum [sha256.Size]byte
}

func NewAdminGate(secret string) *AdminGate {
	return &AdminGate{secretSum: sha256.Sum256([]byte(secret))}
}

// Authorize compares the provided secret against the configured one in
// constant time. Both sides are hashed first so the comparison does not
// depend on secret length.
func (g *AdminGate) Authorize(provided string) bool {
	sum := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(g.secretSum[:], sum[:]) == 1
}
