package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villagehq/village/engine"
)

func TestRecipePython(t *testing.T) {
	recipe, err := Recipe(engine.Python, "3.12", "", "")
	require.NoError(t, err)

	assert.Contains(t, recipe, "FROM python:3.12-alpine\n")
	assert.Contains(t, recipe, "WORKDIR /app\n")
	assert.Contains(t, recipe, "COPY package.tar.gz /app\n")
	assert.Contains(t, recipe, "COPY shim.py /app\n")
	assert.Contains(t, recipe, "RUN tar -xzf package.tar.gz\n")
	assert.Contains(t, recipe, `if test -f "./requirements.txt"`)
	assert.Contains(t, recipe, "CMD [\"python3\", \"shim.py\"]\n")
}

func TestRecipeNode(t *testing.T) {
	recipe, err := Recipe(engine.Node, "20", "", "")
	require.NoError(t, err)

	assert.Contains(t, recipe, "FROM node:20-alpine\n")
	assert.Contains(t, recipe, "COPY shim.js /app\n")
	assert.Contains(t, recipe, "RUN yarn install\n")
	assert.Contains(t, recipe, "CMD [\"node\", \"shim.js\"]\n")
}

func TestRecipeImageOverride(t *testing.T) {
	recipe, err := Recipe(engine.Python, "3.12", "", "python:3.11-slim")
	require.NoError(t, err)
	assert.Contains(t, recipe, "FROM python:3.11-slim\n")
	assert.NotContains(t, recipe, "alpine")
}

func TestRecipeBuildCommand(t *testing.T) {
	recipe, err := Recipe(engine.Python, "3.12", "pip install -e .", "")
	require.NoError(t, err)
	assert.Contains(t, recipe, "RUN pip install -e .\n")

	without, err := Recipe(engine.Python, "3.12", "", "")
	require.NoError(t, err)
	assert.NotContains(t, without, "RUN pip install -e .")
}

func TestRecipeUnsupportedEngine(t *testing.T) {
	_, err := Recipe(engine.Engine("ruby"), "3", "", "")
	assert.ErrorIs(t, err, engine.ErrUnsupported)
}
