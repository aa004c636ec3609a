package invalidate

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vipspatchbay/internal/graph"
)

type fakeGraph struct {
	instances map[int64]*graph.BlockInstance
	byProject map[int64][]graph.BlockInstance
	enabled   map[int64]bool
}

func (f *fakeGraph) GetBlockInstance(ctx context.Context, id int64) (*graph.BlockInstance, error) {
	b, ok := f.instances[id]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return b, nil
}

func (f *fakeGraph) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	f.enabled[id] = enabled
	return nil
}

func (f *fakeGraph) ListProjectBlocks(ctx context.Context, idProject int64) ([]graph.BlockInstance, error) {
	return f.byProject[idProject], nil
}

type fakeCache struct {
	byBlock map[int64][]uuid.UUID
	deleted []uuid.UUID
}

func (c *fakeCache) ListUUIDsForBlocks(ctx context.Context, blockIDs []int64) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, b := range blockIDs {
		ids = append(ids, c.byBlock[b]...)
	}
	return ids, nil
}

func (c *fakeCache) DeleteByUUID(ctx context.Context, id uuid.UUID) error {
	c.deleted = append(c.deleted, id)
	return nil
}

type fakeStore struct {
	resolvable map[string]string
}

func (s *fakeStore) Resolve(id string) (string, bool) {
	path, ok := s.resolvable[id]
	return path, ok
}

func conns(m map[string]int64) []byte {
	b, _ := json.Marshal(m)
	return b
}

func TestToggleEnabledFromDisabledToEnabledDoesNotInvalidate(t *testing.T) {
	g := &fakeGraph{
		instances: map[int64]*graph.BlockInstance{
			1: {ID: 1, IDProject: 1, Enabled: sql.NullBool{Valid: true, Bool: false}},
		},
		byProject: map[int64][]graph.BlockInstance{},
		enabled:   map[int64]bool{},
	}
	c := &fakeCache{byBlock: map[int64][]uuid.UUID{}}
	s := &fakeStore{resolvable: map[string]string{}}
	ic := New(g, c, s)

	newEnabled, err := ic.ToggleEnabled(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, newEnabled)
	assert.True(t, g.enabled[1])
	assert.Empty(t, c.deleted)
}

func TestToggleEnabledFromEnabledToDisabledPurgesDownstream(t *testing.T) {
	// 1 -> 2 -> 3 (2 depends on 1, 3 depends on 2)
	g := &fakeGraph{
		instances: map[int64]*graph.BlockInstance{
			1: {ID: 1, IDProject: 1, Enabled: sql.NullBool{}},
		},
		byProject: map[int64][]graph.BlockInstance{
			1: {
				{ID: 1, IDProject: 1, ConnectionsJSON: conns(nil)},
				{ID: 2, IDProject: 1, ConnectionsJSON: conns(map[string]int64{"a": 1})},
				{ID: 3, IDProject: 1, ConnectionsJSON: conns(map[string]int64{"a": 2})},
			},
		},
		enabled: map[int64]bool{},
	}
	out1, out2, out3 := uuid.New(), uuid.New(), uuid.New()
	c := &fakeCache{byBlock: map[int64][]uuid.UUID{1: {out1}, 2: {out2}, 3: {out3}}}
	s := &fakeStore{resolvable: map[string]string{
		out1.String(): "/tmp/1.png",
		out2.String(): "/tmp/2.png",
		out3.String(): "/tmp/3.png",
	}}
	ic := New(g, c, s)

	newEnabled, err := ic.ToggleEnabled(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, newEnabled)
	assert.False(t, g.enabled[1])
	assert.ElementsMatch(t, []uuid.UUID{out1, out2, out3}, c.deleted)
}

func TestToggleEnabledUnknownBlockFails(t *testing.T) {
	g := &fakeGraph{instances: map[int64]*graph.BlockInstance{}, byProject: map[int64][]graph.BlockInstance{}, enabled: map[int64]bool{}}
	c := &fakeCache{byBlock: map[int64][]uuid.UUID{}}
	s := &fakeStore{resolvable: map[string]string{}}
	ic := New(g, c, s)

	_, err := ic.ToggleEnabled(context.Background(), 99)
	assert.Error(t, err)
}
