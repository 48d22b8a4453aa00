package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID(uuid.NewString()))
	assert.True(t, IsUUID("00000000-0000-0000-0000-000000000000"))

	for _, s := range []string{"", "p-1", "SHP-7", "1001", "urn:uuid:00000000-0000-0000-0000-000000000000", "{00000000-0000-0000-0000-000000000000}"} {
		assert.False(t, IsUUID(s), s)
	}
}
