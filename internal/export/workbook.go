package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ideaforge/internal/domain"
)

const (
	sheetDocuments = "Documents"
	sheetIdeas     = "Ideas"
	sheetClusters  = "Clusters"
)

var documentColumns = []string{"Document", "State", "Chunks", "Mined Parts", "Items", "Stage Calls", "Error"}

var clusterColumns = []string{"Cluster", "Members", "Documents", "Fallback"}

// WriteWorkbook writes corpus.xlsx-style output to path: one sheet for the
// run's document outcomes, one for every extracted idea and one for clusters.
func WriteWorkbook(path string, summary *domain.RunSummary, records []domain.NamedRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetDocuments); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	for _, name := range []string{sheetIdeas, sheetClusters} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	var docRows [][]any
	for _, d := range summary.Documents {
		docRows = append(docRows, []any{d.Document, string(d.State), d.Chunks, d.MinedParts, d.Items, d.StageCalls, d.Error})
	}
	if err := writeSheet(f, sheetDocuments, documentColumns, docRows); err != nil {
		return err
	}

	var ideaRowsAny [][]any
	for _, row := range ideaRows(records) {
		r := make([]any, len(row))
		for i, v := range row {
			r[i] = v
		}
		ideaRowsAny = append(ideaRowsAny, r)
	}
	if err := writeSheet(f, sheetIdeas, ideaColumns, ideaRowsAny); err != nil {
		return err
	}

	var clusterRows [][]any
	for _, c := range summary.Clusters {
		clusterRows = append(clusterRows, []any{c.Name, len(c.Members), strings.Join(c.Members, ", "), summary.ClusterFailed})
	}
	if err := writeSheet(f, sheetClusters, clusterColumns, clusterRows); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating workbook directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing %s header: %w", sheet, err)
	}
	return nil
}
