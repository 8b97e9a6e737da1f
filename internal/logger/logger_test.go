package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"access_token", "abc", "chapter", "chapter1", "SECRET_KEY", "s3cr3t"})
	assert.Equal(t, []interface{}{"access_token", "[REDACTED]", "chapter", "chapter1", "SECRET_KEY", "[REDACTED]"}, out)
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", 7, "dangling"})
	assert.Equal(t, []interface{}{"user_id", 7, "dangling"}, out)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("LOUD", "console")
	require.Error(t, err)

	l, err := New("DEBUG", "json")
	require.NoError(t, err)
	l.With("component", "test").Debug("hello", "k", "v")
}
