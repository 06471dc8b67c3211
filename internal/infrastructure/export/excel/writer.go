// Package excel renders a filtered question set as an xlsx workbook,
// one sheet per source.
package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"questmine/internal/core/domain"
)

var header = []string{"Chapter", "Question", "Marks", "Subject", "Category", "Year", "Document", "Source Link"}

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// WriteQuestions streams the workbook to w. Empty sources still get
// their sheet with a header row so the export shape is stable.
func (e *Writer) WriteQuestions(w io.Writer, set domain.QuestionSet) error {
	file := excelize.NewFile()
	defer file.Close()

	sheets := []struct {
		name    string
		records []domain.QuestionRecord
	}{
		{"Scraped", set.Scraped},
		{"Uploaded", set.Uploaded},
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := file.SetSheetName(file.GetSheetName(0), sheet.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := file.NewSheet(sheet.name); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet.name, err)
			}
		}
		if err := writeSheet(file, sheet.name, sheet.records); err != nil {
			return err
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(file *excelize.File, sheet string, records []domain.QuestionRecord) error {
	if err := setRow(file, sheet, 1, toAny(header)); err != nil {
		return err
	}
	for i, record := range records {
		row := []any{
			record.Chapter,
			record.QuestionText,
			marksCell(record.Marks),
			record.Subject,
			record.Category,
			yearCell(record.Year),
			record.DocumentName,
			record.SourceLink,
		}
		if err := setRow(file, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(file *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("row %d coordinates: %w", rowNum, err)
	}
	if err := file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write sheet %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func marksCell(marks *int) any {
	if marks == nil {
		return ""
	}
	return *marks
}

func yearCell(year int) any {
	if year == 0 {
		return ""
	}
	return year
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
