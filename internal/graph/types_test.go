package graph

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionsSortedPortsIsLexicographic(t *testing.T) {
	c := Connections{"b": 2, "a": 1, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, c.SortedPorts())
}

func TestConnectionsFirstPicksLexicographicallyFirstPort(t *testing.T) {
	c := Connections{"b": 2, "a": 1}
	id, ok := c.First()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestConnectionsFirstOnEmptyReturnsFalse(t *testing.T) {
	c := Connections{}
	_, ok := c.First()
	assert.False(t, ok)
}

func TestBlockInstanceIsDisabledTriValued(t *testing.T) {
	absent := &BlockInstance{Enabled: sql.NullBool{}}
	assert.False(t, absent.IsDisabled())

	explicitTrue := &BlockInstance{Enabled: sql.NullBool{Valid: true, Bool: true}}
	assert.False(t, explicitTrue.IsDisabled())

	explicitFalse := &BlockInstance{Enabled: sql.NullBool{Valid: true, Bool: false}}
	assert.True(t, explicitFalse.IsDisabled())
}

func TestBlockInstanceConnectionsParsesJSON(t *testing.T) {
	b := &BlockInstance{ConnectionsJSON: []byte(`{"a":1,"b":2}`)}
	conns, err := b.Connections()
	require.NoError(t, err)
	assert.Equal(t, Connections{"a": 1, "b": 2}, conns)
}

func TestBlockInstanceConnectionsEmptyIsEmptyMap(t *testing.T) {
	b := &BlockInstance{}
	conns, err := b.Connections()
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestBlockInstanceSettingsMapParsesOutputValue(t *testing.T) {
	b := &BlockInstance{OutputValue: []byte(`{"radius":5}`)}
	m, err := b.SettingsMap()
	require.NoError(t, err)
	assert.Equal(t, float64(5), m["radius"])
}

func TestBlockTypeGUIFieldNamesParsesOrderedList(t *testing.T) {
	bt := &BlockType{GUIFields: []byte(`["a","b"]`)}
	fields, err := bt.GUIFieldNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fields)
}

func TestBlockTypeGUIFieldNamesEmptyIsNil(t *testing.T) {
	bt := &BlockType{}
	fields, err := bt.GUIFieldNames()
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestBlockTypeMappingsParsesNestedObject(t *testing.T) {
	bt := &BlockType{ParameterMappings: []byte(`{"mode":{"a":"1","b":"2"}}`)}
	mappings, err := bt.Mappings()
	require.NoError(t, err)
	assert.Equal(t, "1", mappings["mode"]["a"])
}

func TestBlockTypeIsTerminal(t *testing.T) {
	terminal := &BlockType{Outputs: sql.NullString{}}
	assert.True(t, terminal.IsTerminal())

	nonTerminal := &BlockType{Outputs: sql.NullString{Valid: true, String: "image"}}
	assert.False(t, nonTerminal.IsTerminal())
}

func TestKindOfDispatchesKnownNames(t *testing.T) {
	assert.Equal(t, KindInput, KindOf(TypeNameInput))
	assert.Equal(t, KindLoadImage, KindOf(TypeNameLoadImage))
	assert.Equal(t, KindImagePreview, KindOf(TypeNameImagePreview))
	assert.Equal(t, KindGeneral, KindOf("Blur"))
}
