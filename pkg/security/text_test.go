package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "size too small", Sanitize("  size \n\t too\x00 small "))
	assert.Equal(t, "&lt;b&gt;torn&lt;/b&gt;", Sanitize("<b>torn</b>"))
}

func TestTextFieldClean(t *testing.T) {
	reason := TextField{Name: "reason", MaxLength: 10, Required: true}

	_, err := reason.Clean("   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, err = reason.Clean(strings.Repeat("长", 11))
	require.Error(t, err)

	v, err := reason.Clean(" damaged ")
	require.NoError(t, err)
	assert.Equal(t, "damaged", v)

	note := TextField{Name: "note", MaxLength: 10}
	v, err = note.Clean("")
	require.NoError(t, err)
	assert.Empty(t, v)
}
