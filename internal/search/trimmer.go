package search

// TrimByAllowedDocuments keeps only results whose owning document is in the
// allowed set. An empty or nil set yields an empty list: if the caller could
// not determine an access set, nothing is returned.
func TrimByAllowedDocuments(results []Result, allowedDocumentIDs map[string]bool) []Result {
	if len(allowedDocumentIDs) == 0 {
		return []Result{}
	}
	trimmed := make([]Result, 0, len(results))
	for _, result := range results {
		if allowedDocumentIDs[result.DocumentID] {
			trimmed = append(trimmed, result)
		}
	}
	return trimmed
}
