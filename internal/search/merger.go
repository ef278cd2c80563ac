package search

import "sort"

// Merge fuses the two ranked lists by weighted score combination. A chunk in
// both lists ends tagged hybrid with an additive combined score; a chunk in
// one list keeps that list's tag and a weight-scaled score. The fused list
// is sorted by final score descending and capped at max(1, limit).
func Merge(keywordResults, vectorResults []Result, keywordWeight, vectorWeight float64, limit int) []Result {
	byChunk := make(map[string]int, len(keywordResults)+len(vectorResults))
	merged := make([]Result, 0, len(keywordResults)+len(vectorResults))

	for _, item := range keywordResults {
		copy := item
		copy.Score = item.Score * keywordWeight
		copy.Type = TypeKeyword
		byChunk[copy.ChunkID] = len(merged)
		merged = append(merged, copy)
	}

	for _, item := range vectorResults {
		vectorScore := item.Score * vectorWeight
		if i, ok := byChunk[item.ChunkID]; ok {
			merged[i].Score += vectorScore
			merged[i].Type = TypeHybrid
			continue
		}
		copy := item
		copy.Score = vectorScore
		copy.Type = TypeVector
		byChunk[copy.ChunkID] = len(merged)
		merged = append(merged, copy)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if max := maxLimit(limit); len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
