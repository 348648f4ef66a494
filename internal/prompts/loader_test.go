package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get("extraction.json", "profile")
	require.NoError(t, err)
	assert.Contains(t, prompt, "profile page")
	assert.Contains(t, prompt, "{{.URL}}")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("extraction.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestFormat(t *testing.T) {
	result := Format("Loaded from {{.URL}} for {{.Username}}", map[string]string{
		"URL":      "https://site.example/alice/",
		"Username": "alice",
	})
	assert.Equal(t, "Loaded from https://site.example/alice/ for alice", result)
}

func TestFormat_UnknownPlaceholderKept(t *testing.T) {
	assert.Equal(t, "Hello {{.Name}}", Format("Hello {{.Name}}", map[string]string{}))
	assert.Equal(t, "Hello {{.Name}}", Format("Hello {{.Name}}", map[string]string{"Other": "x"}))
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("extraction.json")
	require.NoError(t, err)
	assert.Contains(t, keys, "interactions")
	assert.Contains(t, keys, "rule-counts")
	assert.IsNonDecreasing(t, keys)
}
