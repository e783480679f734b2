package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, raw := range []string{"python", "node"} {
		e, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, Engine(raw), e)
		assert.True(t, e.Valid())
	}

	for _, raw := range []string{"", "ruby", "Python", "node "} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrUnsupported, raw)
	}
}

func TestDefaultImage(t *testing.T) {
	assert.Equal(t, "python:3.12-alpine", Python.DefaultImage("3.12"))
	assert.Equal(t, "node:20-alpine", Node.DefaultImage("20"))
}

func TestRuntimeAndShim(t *testing.T) {
	assert.Equal(t, "python3", Python.Runtime())
	assert.Equal(t, "shim.py", Python.ShimFile())
	assert.Equal(t, "node", Node.Runtime())
	assert.Equal(t, "shim.js", Node.ShimFile())
}

func TestInstallSteps(t *testing.T) {
	// python installs only when a requirements file is shipped; node
	// always runs its package manager
	require.Len(t, Python.InstallSteps(), 1)
	assert.Contains(t, Python.InstallSteps()[0], "requirements.txt")
	assert.Contains(t, Python.InstallSteps()[0], "if test -f")

	require.Len(t, Node.InstallSteps(), 1)
	assert.Contains(t, Node.InstallSteps()[0], "yarn install")
}
