package identity

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIdentityNormalizes(t *testing.T) {
	base := HashIdentity("alice@example.com")

	assert.Equal(t, base, HashIdentity("Alice@Example.com"))
	assert.Equal(t, base, HashIdentity("  alice@example.com  "))
	assert.Equal(t, base, HashIdentity("ALICE@EXAMPLE.COM"))
}

func TestHashIdentityIsDeterministic(t *testing.T) {
	assert.Equal(t, HashIdentity("subject-1"), HashIdentity("subject-1"))
	assert.NotEqual(t, HashIdentity("subject-1"), HashIdentity("subject-2"))
}

func TestHashIdentityShape(t *testing.T) {
	hash := HashIdentity("anything")
	assert.Len(t, hash, 64)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), hash)
}

func TestNewDocumentIDShape(t *testing.T) {
	id := NewDocumentID()
	require.Regexp(t, regexp.MustCompile(`^hr_\d+_[0-9a-f]{8}$`), id)
}

func TestNewDocumentIDUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewDocumentID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate document id %s", id)
		seen[id] = struct{}{}
	}
}
