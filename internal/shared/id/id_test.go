package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDPrefix(t *testing.T) {
	rid := NewRequestID()
	assert.True(t, strings.HasPrefix(rid.String(), "req_"))
	assert.True(t, IsValid(strings.TrimPrefix(rid.String(), "req_")))
}

func TestBackupIDPrefix(t *testing.T) {
	bid := NewBackupID()
	assert.True(t, strings.HasPrefix(bid.String(), "bkp_"))
}

func TestGeneratedIDsAreUnique(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.GenerateString()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NewGenerator().GenerateString()))
	assert.False(t, IsValid("not-a-ulid"))
	assert.False(t, IsValid(""))
}
