package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyCanonicalizesKeyOrdering(t *testing.T) {
	k1, err := NewKey(1, json.RawMessage(`{"a":1,"b":2}`), []string{"x"})
	require.NoError(t, err)
	k2, err := NewKey(1, json.RawMessage(`{"b":2,"a":1}`), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "key ordering in the source JSON must not affect the cache key")
}

func TestNewKeyDiffersOnBlockID(t *testing.T) {
	k1, err := NewKey(1, json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	k2, err := NewKey(2, json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestNewKeyDiffersOnInputOrder(t *testing.T) {
	k1, err := NewKey(1, json.RawMessage(`{}`), []string{"a", "b"})
	require.NoError(t, err)
	k2, err := NewKey(1, json.RawMessage(`{}`), []string{"b", "a"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "input order is part of the key, not just the set of inputs")
}

func TestNewKeyEmptySettingsDefaultsToEmptyObject(t *testing.T) {
	k, err := NewKey(1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", k.ParametersJSON)
	assert.Equal(t, "[]", k.InputUUIDsJSON)
}

func TestNewKeyRejectsMalformedSettings(t *testing.T) {
	_, err := NewKey(1, json.RawMessage(`not json`), nil)
	assert.Error(t, err)
}
