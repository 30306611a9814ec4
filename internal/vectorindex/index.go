package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/models"
)

// Index is a flat exact nearest-neighbour index over fragment embeddings,
// searched by L2 distance (smaller score = closer match). Every row carries a
// monotonically increasing handle that identifies one Fragment for the
// lifetime of the index; handles of deleted rows are never reused, so a stale
// external reference can be recognised as such.
//
// Re-ingestion contract: AddBatch appends. Callers wanting replace semantics
// for an updated upload of the same (course, chapter, file) triple call
// DeleteBySource first; the ingestion pipeline does exactly that.
//
// Concurrency: multiple readers, single writer. A batch is committed to the
// bolt file first and published to the in-memory snapshot under the write
// lock, so concurrent searches see either the pre-batch or the fully
// post-batch index, never a partial append.
type Index struct {
	mu    sync.RWMutex
	store *boltStore

	dimension  int
	nextHandle uint64
	rows       []row
}

type row struct {
	handle   uint64
	vector   []float32
	fragment models.Fragment
}

// Open opens (or creates) the index file at path and loads all persisted
// rows into memory. Dimension is fixed by the first batch ever inserted.
func Open(path string) (*Index, error) {
	store, err := openBoltStore(path)
	if err != nil {
		return nil, err
	}

	idx := &Index{store: store}
	if err := idx.load(); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("vector index opened", "path", path, "fragments", len(idx.rows), "dimension", idx.dimension)
	return idx, nil
}

func (idx *Index) load() error {
	meta, rows, err := idx.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load vector index: %w", err)
	}
	idx.dimension = meta.Dimension
	idx.nextHandle = meta.NextHandle
	idx.rows = rows
	return nil
}

// Close releases the underlying bolt file.
func (idx *Index) Close() error {
	return idx.store.Close()
}

// Dimension returns the configured vector dimension, 0 before the first insert.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Count returns the number of live fragments.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.rows)
}

// AddBatch appends fragments with their embeddings. The batch is durable
// before it becomes searchable; a failed commit publishes nothing.
func (idx *Index) AddBatch(fragments []models.Fragment, vectors [][]float32) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("fragment/vector count mismatch: %d vs %d", len(fragments), len(vectors))
	}
	if len(fragments) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := idx.dimension
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("cannot index zero-dimension vectors")
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, index requires %d", i, len(v), dim)
		}
	}

	batch := make([]row, len(fragments))
	handle := idx.nextHandle
	for i := range fragments {
		// Copy the vector so later caller-side reuse of the slice cannot
		// mutate the published rows.
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		batch[i] = row{
			handle:   handle,
			vector:   vec,
			fragment: fragments[i].Clone(),
		}
		handle++
	}

	meta := indexMeta{Dimension: dim, NextHandle: handle}
	if err := idx.store.CommitBatch(meta, batch); err != nil {
		return fmt.Errorf("failed to persist batch: %w", err)
	}

	idx.dimension = dim
	idx.nextHandle = handle
	idx.rows = append(idx.rows, batch...)

	logger.Info("indexed fragment batch", "count", len(batch), "total", len(idx.rows))
	return nil
}

// Search returns up to k nearest fragments to query by L2 distance, closest
// first. An empty index yields an empty result, never an error. Ties on
// distance break by handle so repeated searches are stable.
func (idx *Index) Search(query []float32, k int) []models.SearchResult {
	if k <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.rows) == 0 || len(query) != idx.dimension {
		return nil
	}

	type scored struct {
		dist   float64
		rowIdx int
	}
	candidates := make([]scored, len(idx.rows))
	for i := range idx.rows {
		candidates[i] = scored{dist: l2Distance(query, idx.rows[i].vector), rowIdx: i}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}
		return idx.rows[candidates[a].rowIdx].handle < idx.rows[candidates[b].rowIdx].handle
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	results := make([]models.SearchResult, 0, k)
	for _, c := range candidates[:k] {
		f := idx.rows[c.rowIdx].fragment.Clone()
		results = append(results, models.SearchResult{
			Content:     f.Content,
			SourceFile:  f.SourceFile,
			CourseID:    f.CourseID,
			ChapterName: f.ChapterName,
			PageNumber:  f.PageNumber,
			ChunkIndex:  f.ChunkIndex,
			Metadata:    f.Metadata,
			Score:       c.dist,
		})
	}
	return results
}

// DeleteBySource removes all fragments previously ingested for one
// (course, chapter, file) triple and reports how many were removed. Freed
// handles stay retired for the lifetime of the index.
func (idx *Index) DeleteBySource(courseID int, chapterName, sourceFile string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var doomed []uint64
	kept := idx.rows[:0:0]
	for _, r := range idx.rows {
		if r.fragment.CourseID == courseID &&
			r.fragment.ChapterName == chapterName &&
			r.fragment.SourceFile == sourceFile {
			doomed = append(doomed, r.handle)
		} else {
			kept = append(kept, r)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	if err := idx.store.DeleteHandles(doomed); err != nil {
		return 0, fmt.Errorf("failed to delete fragments: %w", err)
	}
	idx.rows = kept

	logger.Info("deleted fragments for source",
		"course_id", courseID, "chapter", chapterName, "file", sourceFile, "count", len(doomed))
	return len(doomed), nil
}

// Stats summarises the index contents for the diagnostics endpoint.
func (idx *Index) Stats() models.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	counts := make(map[int]int)
	for _, r := range idx.rows {
		counts[r.fragment.CourseID]++
	}
	return models.IndexStats{
		TotalFragments: len(idx.rows),
		CoursesIndexed: len(counts),
		CourseCounts:   counts,
		Dimension:      idx.dimension,
	}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
