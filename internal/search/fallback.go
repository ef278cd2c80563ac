package search

// Fallback returns the single synthetic result served when security trimming
// leaves nothing, so pagination always has at least one element.
func Fallback(query string) []Result {
	return []Result{{
		Content: "No indexed results found for query: " + query,
		Score:   0,
		Type:    TypeFallback,
	}}
}
