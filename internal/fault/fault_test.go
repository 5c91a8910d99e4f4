package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingOriginalMatchesConfigError(t *testing.T) {
	err := fmt.Errorf("patch: %w", &MissingOriginalError{Op: "load patches", Source: "Foo.java.patch", Original: "Foo.java"})

	var cfg *ConfigError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "Foo.java", cfg.Path)

	var missing *MissingOriginalError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, err.Error(), "Foo.java")
}

func TestUnresolvedIsSentinel(t *testing.T) {
	err := fmt.Errorf("wiggle: %w", &UnresolvedConflictError{Path: "a/B.java"})
	assert.True(t, errors.Is(err, ErrUnresolved))
	assert.Contains(t, err.Error(), "a/B.java.patch")
}

func TestExternalToolPrefersStderr(t *testing.T) {
	assert.Equal(t, "boom", PreferredOutput("out", " boom\n"))
	assert.Equal(t, "out", PreferredOutput("out\n", "  "))

	err := &ExternalToolError{Op: "decompile", Args: []string{"java", "-jar"}, ExitCode: 3, Output: "bad"}
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "bad")
}
