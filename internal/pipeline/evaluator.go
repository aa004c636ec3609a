// Package pipeline implements the Pipeline Evaluator (PE): the recursive
// DAG walker that materializes a block's output image by composing its
// ancestors, consulting the Cache Index, and invoking the Executor on a
// miss.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"vipspatchbay/internal/cache"
	"vipspatchbay/internal/executor"
	"vipspatchbay/internal/graph"
	"vipspatchbay/internal/store"
)

var tracer = otel.Tracer("vipspatchbay/pipeline")

// SubprocessRunner is the seam the Evaluator uses to invoke the Executor,
// so tests can substitute a fake without spawning real processes.
type SubprocessRunner interface {
	Run(ctx context.Context, spec executor.ArgvSpec) (executor.Result, error)
}

// execRunner adapts executor.Run to the SubprocessRunner interface with a
// fixed per-call timeout.
type execRunner struct{ timeout time.Duration }

func (r execRunner) Run(ctx context.Context, spec executor.ArgvSpec) (executor.Result, error) {
	return executor.Run(ctx, r.timeout, spec)
}

// GraphReader is what the Evaluator needs from the Block Graph, narrowed
// to the two lookups this package actually calls so tests can substitute
// an in-memory graph instead of a database. *graph.Repository satisfies
// this.
type GraphReader interface {
	GetBlockInstance(ctx context.Context, id int64) (*graph.BlockInstance, error)
	GetBlockType(ctx context.Context, id int64) (*graph.BlockType, error)
}

// CacheIndex is what the Evaluator needs from the Cache Index.
// *cache.Index satisfies this.
type CacheIndex interface {
	Lookup(ctx context.Context, key cache.Key) (uuid.UUID, bool, error)
	Insert(ctx context.Context, id uuid.UUID, key cache.Key) error
	DeleteByUUID(ctx context.Context, id uuid.UUID) error
}

// ImageStore is what the Evaluator needs from the Image Store / Path
// Resolver. *store.Store satisfies this.
type ImageStore interface {
	Resolve(id string) (string, bool)
	AllocateDerivedPath() (uuid.UUID, string)
}

// ImageLookup is what the Evaluator needs for the "Load Image" block
// kind. *store.InputImages satisfies this.
type ImageLookup interface {
	LookupByFilename(ctx context.Context, filename string) (uuid.UUID, bool, error)
}

// Evaluator is the Pipeline Evaluator. It holds no per-request state of
// its own; all transient state (the Memo, the cycle-detection set) is
// passed in or created by the caller, per spec.md §5 ("no shared
// in-process mutable state between requests other than the database and
// the filesystem").
type Evaluator struct {
	graph  GraphReader
	cache  CacheIndex
	store  ImageStore
	images ImageLookup
	run    SubprocessRunner
}

// New constructs an Evaluator. timeout bounds each individual subprocess
// invocation; zero means no bound.
func New(g GraphReader, ci CacheIndex, s ImageStore, images ImageLookup, timeout time.Duration) *Evaluator {
	return &Evaluator{graph: g, cache: ci, store: s, images: images, run: execRunner{timeout: timeout}}
}

// WithRunner overrides the SubprocessRunner, for tests.
func (e *Evaluator) WithRunner(r SubprocessRunner) *Evaluator {
	e.run = r
	return e
}

// ResultOf is the Pipeline Evaluator's public operation: given a terminal
// (or any) block id and an initial input uuid, it returns that block's
// output uuid. memo should be fresh per top-level HTTP request, except
// for the batch "outputs" endpoint, which constructs exactly one Memo and
// shares it across every input in the request (spec.md §6, §9).
func (e *Evaluator) ResultOf(ctx context.Context, blockID int64, initialInput uuid.UUID, memo *Memo) (uuid.UUID, error) {
	return e.eval(ctx, blockID, initialInput, memo, nil)
}

// eval resolves one (blockID, initialInput) pair. path carries the keys
// already on this DFS branch: a key already in path means the graph
// revisits a block through its own ancestry, a true cycle. A key not in
// path but already resolving in memo (a sibling branch reached the same
// upstream block concurrently, the diamond-dependency case) is not a
// cycle; memo.resolve makes the second caller wait for the first's result
// instead of recomputing or failing.
func (e *Evaluator) eval(ctx context.Context, blockID int64, initialInput uuid.UUID, memo *Memo, path pathSet) (uuid.UUID, error) {
	key := memoKey{blockID: blockID, initialInput: initialInput}

	if path.has(key) {
		return uuid.Nil, fail(blockID, ReasonCycle, fmt.Errorf("block %d revisited before completing", blockID))
	}
	childPath := path.with(key)

	return memo.resolve(key, func() (uuid.UUID, error) {
		ctx, span := tracer.Start(ctx, "pipeline.eval")
		span.SetAttributes(attribute.Int64("block_id", blockID), attribute.String("initial_input", initialInput.String()))
		defer span.End()

		result, err := e.evalBlock(ctx, blockID, initialInput, memo, childPath)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return uuid.Nil, err
		}
		return result, nil
	})
}

func (e *Evaluator) evalBlock(ctx context.Context, blockID int64, initialInput uuid.UUID, memo *Memo, path pathSet) (uuid.UUID, error) {
	instance, err := e.graph.GetBlockInstance(ctx, blockID)
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonNotFound, err)
	}

	// Dispatch order is fixed by spec.md §4.2: disabled status is checked
	// before block-type kind, so a disabled "Input" block is still a
	// disabled pass-through, not an Input pass-through.
	if instance.IsDisabled() {
		return e.evalDisabled(ctx, blockID, instance, initialInput, memo, path)
	}

	blockType, err := e.graph.GetBlockType(ctx, instance.IDBlock)
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonNotFound, err)
	}

	switch graph.KindOf(blockType.Name) {
	case graph.KindInput:
		return initialInput, nil
	case graph.KindLoadImage:
		return e.evalLoadImage(ctx, blockID, instance)
	case graph.KindImagePreview:
		return e.evalImagePreview(ctx, blockID, instance, initialInput, memo, path)
	default:
		return e.evalGeneral(ctx, blockID, instance, blockType, initialInput, memo, path)
	}
}

// evalDisabled implements spec.md §4.2 kind 1: pass through the first
// input (by lexicographic port order); zero inputs is a failure. This
// path never touches the Cache Index.
func (e *Evaluator) evalDisabled(ctx context.Context, blockID int64, instance *graph.BlockInstance, initialInput uuid.UUID, memo *Memo, path pathSet) (uuid.UUID, error) {
	conns, err := instance.Connections()
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	upstream, ok := conns.First()
	if !ok {
		return uuid.Nil, fail(blockID, ReasonConfig, fmt.Errorf("disabled block has no inputs"))
	}
	return e.eval(ctx, upstream, initialInput, memo, path)
}

// evalLoadImage implements spec.md §4.2 kind 3.
func (e *Evaluator) evalLoadImage(ctx context.Context, blockID int64, instance *graph.BlockInstance) (uuid.UUID, error) {
	settings, err := instance.SettingsMap()
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	filename, _ := settings["filename"].(string)
	id, found, err := e.images.LookupByFilename(ctx, filename)
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonLoadImageLookup, err)
	}
	if !found {
		return uuid.Nil, fail(blockID, ReasonLoadImageLookup, fmt.Errorf("no input image registered as %q", filename))
	}
	return id, nil
}

// evalImagePreview implements spec.md §4.2 kind 4: exactly one input,
// passed through unchanged.
func (e *Evaluator) evalImagePreview(ctx context.Context, blockID int64, instance *graph.BlockInstance, initialInput uuid.UUID, memo *Memo, path pathSet) (uuid.UUID, error) {
	conns, err := instance.Connections()
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	if len(conns) != 1 {
		return uuid.Nil, fail(blockID, ReasonConfig, fmt.Errorf("image preview requires exactly one input, got %d", len(conns)))
	}
	upstream, _ := conns.First()
	return e.eval(ctx, upstream, initialInput, memo, path)
}

// evalGeneral implements the general-block pipeline of spec.md §4.2
// steps (a)-(h): resolve inputs, compute the cache key, consult the
// Cache Index (self-healing an orphaned row on the way), assemble
// parameters, resolve input paths, allocate an output uuid, execute, and
// insert the new cache row.
func (e *Evaluator) evalGeneral(ctx context.Context, blockID int64, instance *graph.BlockInstance, blockType *graph.BlockType, initialInput uuid.UUID, memo *Memo, path pathSet) (uuid.UUID, error) {
	// (a) Resolve inputs in lexicographic port order. Siblings are
	// evaluated concurrently (they are independent recursive calls
	// through a shared, lock-protected Memo) but their results are
	// re-sequenced into port order before being used, since that order
	// is part of the cache key. path is read-only from here on (eval
	// only ever derives new copies via pathSet.with), so handing the
	// same value to every goroutine below is safe: two siblings that
	// both depend on the same upstream block are a diamond, not a
	// cycle, and memo.resolve is what keeps that upstream's work single.
	conns, err := instance.Connections()
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	ports := conns.SortedPorts()
	inputUUIDs := make([]uuid.UUID, len(ports))

	g, gctx := errgroup.WithContext(ctx)
	for i, port := range ports {
		i, upstream := i, conns[port]
		g.Go(func() error {
			result, err := e.eval(gctx, upstream, initialInput, memo, path)
			if err != nil {
				return err
			}
			inputUUIDs[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uuid.Nil, err
	}

	// (b) Compute the cache key.
	inputUUIDStrings := make([]string, len(inputUUIDs))
	for i, id := range inputUUIDs {
		inputUUIDStrings[i] = id.String()
	}
	key, err := cache.NewKey(blockID, instance.Settings(), inputUUIDStrings)
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}

	// (c) Cache consult, with self-heal on an orphaned row.
	if cached, hit, err := e.cache.Lookup(ctx, key); err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	} else if hit {
		if path, ok := e.store.Resolve(cached.String()); ok && store.Exists(path) {
			return cached, nil
		}
		slog.Warn("self-heal: cache row orphaned, deleting and re-executing", "block_id", blockID, "uuid", cached)
		if err := e.cache.DeleteByUUID(ctx, cached); err != nil {
			return uuid.Nil, fail(blockID, ReasonConfig, err)
		}
	}

	// (d) Parameter assembly.
	settings, err := instance.SettingsMap()
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	params, err := assembleParameters(blockType, settings)
	if err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}

	// (e) Input path resolution.
	inputPaths := make([]string, len(inputUUIDs))
	for i, id := range inputUUIDs {
		path, ok := e.store.Resolve(id.String())
		if !ok {
			return uuid.Nil, fail(blockID, ReasonMissingInput, fmt.Errorf("input %s is not resolvable", id))
		}
		inputPaths[i] = path
	}

	// (f) Output naming.
	outputID, outputPath := e.store.AllocateDerivedPath()

	// (g) Execute.
	spec := executor.ArgvSpec{
		Command:          blockType.Command,
		BlockName:        blockType.Name,
		InputPaths:       inputPaths,
		OutputPath:       outputPath,
		Positional:       params.Positional,
		TemplateFragment: params.TemplateFragment,
	}
	if _, err := e.run.Run(ctx, spec); err != nil {
		return uuid.Nil, fail(blockID, ReasonSubprocess, err)
	}

	// (h) Cache insert.
	if err := e.cache.Insert(ctx, outputID, key); err != nil {
		return uuid.Nil, fail(blockID, ReasonConfig, err)
	}
	return outputID, nil
}
