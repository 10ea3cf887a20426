package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SessionSheet is the printable hand-out for one QR session: what a teacher
// pins to the projector when students scan from a shared display.
type SessionSheet struct {
	SubjectCode string
	Section     string
	RoomName    string
	SessionID   string
	DisplayText string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	MaxUsage    int
	// QRContent is the encrypted payload string the scanning app consumes.
	QRContent string
}

// RenderSessionSheet renders the sheet as an A4 PDF.
func RenderSessionSheet(sheet SessionSheet) ([]byte, error) {
	if sheet.SessionID == "" {
		return nil, fmt.Errorf("session sheet requires a session id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, fmt.Sprintf("%s  Section %s", sheet.SubjectCode, sheet.Section), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, sheet.RoomName, "", 1, "C", false, 0, "")
	if sheet.DisplayText != "" {
		pdf.CellFormat(0, 8, sheet.DisplayText, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(60, 8, "Session", "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, sheet.SessionID, "1", 1, "", false, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(60, 8, "Issued", "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, sheet.GeneratedAt.UTC().Format(time.RFC3339), "1", 1, "", false, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(60, 8, "Valid until", "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, sheet.ExpiresAt.UTC().Format(time.RFC3339), "1", 1, "", false, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(60, 8, "Scan limit", "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("%d scans", sheet.MaxUsage), "1", 1, "", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Scan code", "", 1, "", false, 0, "")
	pdf.SetFont("Courier", "", 9)
	for _, line := range chunk(sheet.QRContent, 64) {
		pdf.CellFormat(0, 5, line, "", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render session sheet: %w", err)
	}
	return buf.Bytes(), nil
}

func chunk(s string, width int) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for len(s) > width {
		lines = append(lines, s[:width])
		s = s[width:]
	}
	return append(lines, s)
}
