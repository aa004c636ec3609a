// Package invalidate implements the Invalidation Controller (IC):
// toggling a block's enabled flag and purging the Cache Index and Image
// Store for every block downstream of it.
package invalidate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"vipspatchbay/internal/cache"
	"vipspatchbay/internal/graph"
	"vipspatchbay/internal/store"
)

// GraphStore is what the Invalidation Controller needs from the Block
// Graph, narrowed to a consumer-defined interface so tests can substitute
// an in-memory graph. *graph.Repository satisfies this.
type GraphStore interface {
	GetBlockInstance(ctx context.Context, id int64) (*graph.BlockInstance, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	ListProjectBlocks(ctx context.Context, idProject int64) ([]graph.BlockInstance, error)
}

// CacheStore is what the Invalidation Controller needs from the Cache
// Index. *cache.Index satisfies this.
type CacheStore interface {
	ListUUIDsForBlocks(ctx context.Context, blockIDs []int64) ([]uuid.UUID, error)
	DeleteByUUID(ctx context.Context, id uuid.UUID) error
}

// FileStore is what the Invalidation Controller needs from the Image
// Store. *store.Store satisfies this.
type FileStore interface {
	Resolve(id string) (string, bool)
}

// Controller owns the toggle-and-invalidate operation of spec.md §4.5.
type Controller struct {
	graph GraphStore
	cache CacheStore
	store FileStore
}

// New constructs an Invalidation Controller.
func New(g GraphStore, ci CacheStore, s FileStore) *Controller {
	return &Controller{graph: g, cache: ci, store: s}
}

// ToggleEnabled flips a block instance's enabled flag and invalidates
// every block downstream of it within the same project, per spec.md
// §4.5:
//
//  1. Read the block's current enabled state and flip it.
//  2. BFS over the "depends on" edges (forward: whose connections
//     reference this block) to find every reachable downstream block.
//  3. For that closure (including the toggled block itself), delete
//     their Cache Index rows and the backing files, forcing
//     re-execution on next access.
func (c *Controller) ToggleEnabled(ctx context.Context, blockID int64) (bool, error) {
	instance, err := c.graph.GetBlockInstance(ctx, blockID)
	if err != nil {
		return false, fmt.Errorf("toggle enabled: %w", err)
	}

	newEnabled := instance.IsDisabled() // currently disabled -> enable
	if err := c.graph.SetEnabled(ctx, blockID, newEnabled); err != nil {
		return false, fmt.Errorf("toggle enabled: %w", err)
	}

	// Enabling a block invalidates nothing; only a disabling transition
	// forces its downstream closure to be recomputed (spec.md §4.5).
	if newEnabled {
		slog.Info("block enabled, no invalidation required", "block_id", blockID)
		return true, nil
	}

	closure, err := c.downstreamClosure(ctx, instance.IDProject, blockID)
	if err != nil {
		return false, fmt.Errorf("toggle enabled: compute downstream closure: %w", err)
	}

	if err := c.purge(ctx, closure); err != nil {
		return false, fmt.Errorf("toggle enabled: purge: %w", err)
	}

	slog.Info("invalidated downstream blocks after toggle", "block_id", blockID, "enabled", newEnabled, "downstream_count", len(closure))
	return false, nil
}

// downstreamClosure performs a breadth-first search over the forward
// "depends on" edges of a project's blocks, starting at blockID and
// following every block whose connections reference an already-visited
// block, returning the full reachable set including blockID itself.
func (c *Controller) downstreamClosure(ctx context.Context, idProject, blockID int64) ([]int64, error) {
	blocks, err := c.graph.ListProjectBlocks(ctx, idProject)
	if err != nil {
		return nil, err
	}

	// dependents[x] = blocks whose connections include x as an upstream.
	dependents := make(map[int64][]int64)
	for i := range blocks {
		b := &blocks[i]
		conns, err := b.Connections()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", b.ID, err)
		}
		for _, upstream := range conns {
			dependents[upstream] = append(dependents[upstream], b.ID)
		}
	}

	visited := map[int64]bool{blockID: true}
	queue := []int64{blockID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range dependents[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	closure := make([]int64, 0, len(visited))
	for id := range visited {
		closure = append(closure, id)
	}
	return closure, nil
}

// purge deletes every cached output belonging to the given block ids,
// both the Cache Index rows and the files they point to. A file already
// missing is not an error, matching the Cache Index's own
// delete-is-idempotent contract.
func (c *Controller) purge(ctx context.Context, blockIDs []int64) error {
	ids, err := c.cache.ListUUIDsForBlocks(ctx, blockIDs)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if path, ok := c.store.Resolve(id.String()); ok {
			if err := store.Remove(path); err != nil {
				return fmt.Errorf("remove cached file for %s: %w", id, err)
			}
		}
		if err := c.cache.DeleteByUUID(ctx, id); err != nil {
			return fmt.Errorf("delete cache row for %s: %w", id, err)
		}
	}
	return nil
}
