package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

func TestRegistryGetAndList(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewMock())

	p, err := r.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ID())

	_, err = r.Get("missing")
	assert.Error(t, err)

	assert.Len(t, r.List(), 1)
}

func TestRegistryGetModel(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewMock())

	m, err := r.GetModel("mock", "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", m.ID)

	_, err = r.GetModel("mock", "nope")
	assert.Error(t, err)
}

func TestRegistryWhitelistBlacklist(t *testing.T) {
	cfg := &types.Config{Provider: map[string]types.ProviderConfig{
		"mock": {Blacklist: []string{"echo"}},
	}}
	r := NewRegistry(cfg)
	r.Register(NewMock())

	_, err := r.GetModel("mock", "echo")
	assert.Error(t, err, "blacklisted model must not resolve")
	assert.Empty(t, r.AllModels())

	cfg = &types.Config{Provider: map[string]types.ProviderConfig{
		"mock": {Whitelist: []string{"other"}},
	}}
	r = NewRegistry(cfg)
	r.Register(NewMock())
	_, err = r.GetModel("mock", "echo")
	assert.Error(t, err, "model outside the whitelist must not resolve")
}

func TestRegistryDefaultModel(t *testing.T) {
	cfg := &types.Config{Model: "mock/echo"}
	r := NewRegistry(cfg)
	r.Register(NewMock())

	m, err := r.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "echo", m.ID)

	// Without a configured default, first available wins.
	r = NewRegistry(nil)
	r.Register(NewMock())
	m, err = r.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "echo", m.ID)

	r = NewRegistry(nil)
	_, err = r.DefaultModel()
	assert.Error(t, err)
}

func TestParseModelString(t *testing.T) {
	p, m := ParseModelString("anthropic/claude-3-5-haiku-20241022")
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-3-5-haiku-20241022", m)

	p, m = ParseModelString("echo")
	assert.Equal(t, "", p)
	assert.Equal(t, "echo", m)
}
