package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminGate(t *testing.T) {
	gate := NewAdminGate("correct horse battery staple")

	assert.True(t, gate.Authorize("correct horse battery staple"))
	assert.False(t, gate.Authorize("correct horse battery"))
	assert.False(t, gate.Authorize(""))
	// Secrets are case-sensitive, unlike addresses.
	assert.False(t, gate.Authorize("Correct Horse Battery Staple"))
}
