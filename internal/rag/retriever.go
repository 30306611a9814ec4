package rag

import (
	"context"
	"sort"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/vectorindex"
	"lms-assistant-backend/models"
)

// DefaultOverfetchFactor is how many times k the retriever pulls from the
// index before applying the course filter. Filtering after a plain search(k)
// can starve a course whose material ranks below other courses' matches.
// Heuristic, tunable via config.
const DefaultOverfetchFactor = 2

// Retriever embeds the query and searches the index, post-filtering by
// course. Retrieval degradation is expected during backend outages, so it
// never surfaces an error: a failed query embedding yields no results and the
// chat turn proceeds on the no-context path.
type Retriever struct {
	embedder  ai.Embedder
	index     *vectorindex.Index
	overfetch int
}

func NewRetriever(embedder ai.Embedder, index *vectorindex.Index, overfetchFactor int) *Retriever {
	if overfetchFactor < 1 {
		overfetchFactor = DefaultOverfetchFactor
	}
	return &Retriever{embedder: embedder, index: index, overfetch: overfetchFactor}
}

// Retrieve returns up to k fragments relevant to query, best (smallest L2
// distance) first. courseID of 0 means no course filter.
func (r *Retriever) Retrieve(ctx context.Context, query string, courseID, k int) []models.SearchResult {
	if k <= 0 {
		return nil
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		logger.Warn("query embedding unavailable, returning no results", "error", err)
		return nil
	}

	results := r.index.Search(queryVec, k*r.overfetch)

	if courseID != 0 {
		filtered := results[:0:0]
		for _, res := range results {
			if res.CourseID == courseID {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	// Ascending distance; equal scores order by chunk index so repeated
	// queries are deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}
