// Package merge combines the per-chunk Miner payloads of one document into a
// single record.
package merge

import (
	"ideaforge/internal/domain"
)

// Merge concatenates extracted_items and trace_log across partials in the
// order given. Nil partials, non-list values and non-object items are skipped.
// At least one non-nil partial is required.
func Merge(partials []map[string]any) (*domain.DocumentRecord, error) {
	rec := domain.NewDocumentRecord()
	used := 0
	for _, p := range partials {
		if p == nil {
			continue
		}
		used++
		if items, ok := domain.DecodeItems(p[domain.KeyExtractedItems]); ok {
			rec.ExtractedItems = append(rec.ExtractedItems, items...)
		}
		if notes, ok := domain.DecodeTraceLog(p[domain.KeyTraceLog]); ok {
			rec.TraceLog = append(rec.TraceLog, notes...)
		}
	}
	if used == 0 {
		return nil, domain.ErrNoPartials
	}
	return rec, nil
}
