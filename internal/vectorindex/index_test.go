package vectorindex

import (
	"math"
	"path/filepath"
	"testing"

	"lms-assistant-backend/models"
)

func openTestIndex(t *testing.T, path string) *Index {
	t.Helper()
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testFragment(courseID, chunkIndex int, content string) models.Fragment {
	return models.Fragment{
		Content:     content,
		SourceFile:  "chapter1.pdf",
		CourseID:    courseID,
		ChapterName: "Chapter 1",
		PageNumber:  1,
		ChunkIndex:  chunkIndex,
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	results := idx.Search([]float32{1, 0, 0}, 5)
	if len(results) != 0 {
		t.Fatalf("expected no results from empty index, got %d", len(results))
	}
}

func TestAddBatchAndSearchOrdering(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	fragments := []models.Fragment{
		testFragment(1, 0, "photosynthesis basics"),
		testFragment(1, 1, "cell respiration"),
		testFragment(1, 2, "mitosis stages"),
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	if err := idx.AddBatch(fragments, vectors); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	results := idx.Search([]float32{1, 0, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkIndex != 0 {
		t.Errorf("closest fragment should be chunk 0, got chunk %d", results[0].ChunkIndex)
	}
	if results[0].Score != 0 {
		t.Errorf("exact match should have score 0, got %f", results[0].Score)
	}
	if results[1].Score < results[0].Score {
		t.Errorf("results not in ascending score order: %f then %f", results[0].Score, results[1].Score)
	}
}

func TestAddBatchCopiesVectors(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}
	fragments := []models.Fragment{
		testFragment(1, 0, "photosynthesis basics"),
		testFragment(1, 1, "cell respiration"),
	}
	if err := idx.AddBatch(fragments, vectors); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	// Callers may reuse their embedding buffers; the index must not see it.
	vectors[0][0] = 99
	vectors[1][1] = -5

	results := idx.Search([]float32{1, 0, 0}, 1)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ChunkIndex != 0 {
		t.Errorf("closest fragment should be chunk 0, got chunk %d", results[0].ChunkIndex)
	}
	if results[0].Score != 0 {
		t.Errorf("exact match should keep score 0 after caller mutation, got %f", results[0].Score)
	}
}

func TestAddBatchRejectsMismatches(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	err := idx.AddBatch(
		[]models.Fragment{testFragment(1, 0, "a"), testFragment(1, 1, "b")},
		[][]float32{{1, 0}},
	)
	if err == nil {
		t.Fatal("expected error for fragment/vector count mismatch")
	}

	if err := idx.AddBatch([]models.Fragment{testFragment(1, 0, "a")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	err = idx.AddBatch([]models.Fragment{testFragment(1, 1, "b")}, [][]float32{{1, 0, 0}})
	if err == nil {
		t.Fatal("expected error for dimension mismatch after first insert")
	}
	if idx.Count() != 1 {
		t.Errorf("failed batch must not be published, count = %d", idx.Count())
	}
}

func TestRoundTripPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx := openTestIndex(t, path)

	fragments := []models.Fragment{
		testFragment(1, 0, "first fragment"),
		testFragment(2, 0, "second fragment"),
	}
	vectors := [][]float32{
		{0.5, 0.25, 0.75},
		{0.1, 0.9, 0.3},
	}
	if err := idx.AddBatch(fragments, vectors); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	query := []float32{0.4, 0.4, 0.4}
	before := idx.Search(query, 2)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestIndex(t, path)
	after := reopened.Search(query, 2)

	if len(after) != len(before) {
		t.Fatalf("result count changed across reload: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Content != before[i].Content {
			t.Errorf("result %d content changed across reload: %q vs %q", i, before[i].Content, after[i].Content)
		}
		if math.Abs(after[i].Score-before[i].Score) > 1e-6 {
			t.Errorf("result %d score changed across reload: %f vs %f", i, before[i].Score, after[i].Score)
		}
	}
	if reopened.Dimension() != 3 {
		t.Errorf("dimension not restored, got %d", reopened.Dimension())
	}
}

func TestDeleteBySource(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	old := []models.Fragment{testFragment(1, 0, "stale version"), testFragment(1, 1, "stale tail")}
	other := testFragment(2, 0, "unrelated course")
	if err := idx.AddBatch(append(old, other), [][]float32{{1, 0}, {0, 1}, {1, 1}}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	removed, err := idx.DeleteBySource(1, "Chapter 1", "chapter1.pdf")
	if err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 fragments removed, got %d", removed)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected 1 fragment left, got %d", idx.Count())
	}

	removed, err = idx.DeleteBySource(1, "Chapter 1", "chapter1.pdf")
	if err != nil {
		t.Fatalf("DeleteBySource (repeat): %v", err)
	}
	if removed != 0 {
		t.Errorf("repeated delete removed %d fragments", removed)
	}

	results := idx.Search([]float32{1, 1}, 10)
	for _, r := range results {
		if r.CourseID == 1 {
			t.Errorf("deleted fragment still searchable: %+v", r)
		}
	}
}

func TestDeletePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx := openTestIndex(t, path)

	if err := idx.AddBatch(
		[]models.Fragment{testFragment(1, 0, "doomed"), testFragment(2, 0, "survivor")},
		[][]float32{{1, 0}, {0, 1}},
	); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if _, err := idx.DeleteBySource(1, "Chapter 1", "chapter1.pdf"); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	idx.Close()

	reopened := openTestIndex(t, path)
	if reopened.Count() != 1 {
		t.Fatalf("expected 1 fragment after reload, got %d", reopened.Count())
	}
	results := reopened.Search([]float32{0, 1}, 1)
	if len(results) != 1 || results[0].Content != "survivor" {
		t.Fatalf("unexpected surviving fragment: %+v", results)
	}
}

func TestStats(t *testing.T) {
	idx := openTestIndex(t, filepath.Join(t.TempDir(), "index.db"))

	if err := idx.AddBatch(
		[]models.Fragment{testFragment(1, 0, "a"), testFragment(1, 1, "b"), testFragment(7, 0, "c")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	stats := idx.Stats()
	if stats.TotalFragments != 3 {
		t.Errorf("TotalFragments = %d, want 3", stats.TotalFragments)
	}
	if stats.CoursesIndexed != 2 {
		t.Errorf("CoursesIndexed = %d, want 2", stats.CoursesIndexed)
	}
	if stats.CourseCounts[1] != 2 || stats.CourseCounts[7] != 1 {
		t.Errorf("unexpected course counts: %v", stats.CourseCounts)
	}
	if stats.Dimension != 2 {
		t.Errorf("Dimension = %d, want 2", stats.Dimension)
	}
}
