package pdf

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"groupware/internal/models"
	"groupware/internal/stream"
)

// TaskListReport renders a streamed task listing into a PDF table. Tasks are
// consumed straight off the reader, so the listing is never held in memory as
// a whole.
func TaskListReport(ctx context.Context, reader *stream.TaskReader) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Task report", false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Task report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated "+time.Now().Format("02.01.2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	tableHeader(pdf)

	count := 0
	for reader.HasNext() {
		task, err := reader.Next(ctx)
		if err != nil {
			break
		}
		taskRow(pdf, task)
		count++
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d tasks", count), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render task report: %w", err)
	}
	return buf.Bytes(), nil
}

var columnWidths = []float64{90, 35, 35, 20, 25, 30}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"Title", "Start", "End", "Done", "Priority", "Status"} {
		pdf.CellFormat(columnWidths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
}

func taskRow(pdf *gofpdf.Fpdf, t *models.Task) {
	title := t.Title
	if len(title) > 55 {
		title = title[:52] + "..."
	}
	pdf.CellFormat(columnWidths[0], 6, title, "1", 0, "L", false, 0, "")
	pdf.CellFormat(columnWidths[1], 6, fmtDate(t.Start), "1", 0, "L", false, 0, "")
	pdf.CellFormat(columnWidths[2], 6, fmtDate(t.End), "1", 0, "L", false, 0, "")
	pdf.CellFormat(columnWidths[3], 6, fmt.Sprintf("%d%%", t.PercentComplete), "1", 0, "R", false, 0, "")
	pdf.CellFormat(columnWidths[4], 6, string(t.Priority), "1", 0, "L", false, 0, "")
	pdf.CellFormat(columnWidths[5], 6, string(t.Status), "1", 0, "L", false, 0, "")
	pdf.Ln(-1)
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02.01.2006 15:04")
}
