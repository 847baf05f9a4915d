// Package export writes the analyzed corpus as a CSV of ideas and an Excel
// workbook covering documents, ideas and clusters.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"ideaforge/internal/domain"
)

// ideaColumns defines the header shared by the CSV and the Ideas sheet.
var ideaColumns = []string{
	"Record",
	"Item",
	"Core Idea",
	"Problem",
	"Solution",
	"User Mood",
	"Code Snippets",
	"Integrity Score",
	"Architecture Type",
	"Market Fit Score",
	"Pivot Suggestion",
}

// ideaRows flattens every extracted item of every record into one row each.
// Record-level evaluation columns repeat on every item of the record.
func ideaRows(records []domain.NamedRecord) [][]string {
	var rows [][]string
	for _, r := range records {
		integrity := annotation(r.Record, "tech_evaluation", "integrity_score")
		archType := annotation(r.Record, "tech_evaluation", "architecture_type")
		marketFit := annotation(r.Record, "market_intelligence", "market_fit_score")
		pivot := annotation(r.Record, "market_intelligence", "pivot_suggestion")
		for i, item := range r.Record.ExtractedItems {
			rows = append(rows, []string{
				r.File,
				strconv.Itoa(i + 1),
				item.CoreIdea(),
				item.Problem(),
				item.Solution(),
				item.UserMood(),
				strconv.Itoa(len(item.CodeSnippets())),
				integrity,
				archType,
				marketFit,
				pivot,
			})
		}
	}
	return rows
}

// annotation reads rec.Annotations[group][key] as display text.
func annotation(rec *domain.DocumentRecord, group, key string) string {
	m, ok := rec.Annotations[group].(map[string]any)
	if !ok {
		return ""
	}
	return formatValue(m[key])
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, formatValue(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
