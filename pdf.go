package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 210 // A4 width in mm
	pdfMargin     = 10  // Margin in mm
	pdfLineHeight = 6   // Row height in mm
	pdfFontSize   = 10
)

// generatePDF writes the group table and the catalog block as a one-page
// (or longer, for many groups) A4 report.
func generatePDF(bundle ReportBundle, metrics []Metric, catalog []byte, outputPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetCreationDate(time.Unix(0, 0).UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle("HTR-United transcription metrics", true)
	pdf.AddPage()

	// Core fonts are cp1252; group names may not be.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	contentWidth := float64(pdfPageWidth - 2*pdfMargin)

	pdf.SetFont("Helvetica", "B", pdfFontSize+4)
	pdf.CellFormat(contentWidth, pdfLineHeight*2, "Transcription metrics", "", 1, "L", false, 0, "")
	pdf.Ln(pdfLineHeight / 2)

	// Group column takes what the metric columns leave.
	metricWidth := 28.0
	groupWidth := contentWidth - metricWidth*float64(len(metrics))

	pdf.SetFont("Helvetica", "B", pdfFontSize)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(groupWidth, pdfLineHeight, "Group", "1", 0, "L", true, 0, "")
	for _, m := range metrics {
		pdf.CellFormat(metricWidth, pdfLineHeight, string(m), "1", 0, "R", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", pdfFontSize)
	for _, g := range bundle.Groups {
		pdf.CellFormat(groupWidth, pdfLineHeight, tr(g.Name), "1", 0, "L", false, 0, "")
		for _, m := range metrics {
			pdf.CellFormat(metricWidth, pdfLineHeight, strconv.FormatUint(g.Counts.Get(m), 10), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", pdfFontSize)
	pdf.CellFormat(groupWidth, pdfLineHeight, "All", "1", 0, "L", true, 0, "")
	for _, m := range metrics {
		pdf.CellFormat(metricWidth, pdfLineHeight, strconv.FormatUint(bundle.Total.Get(m), 10), "1", 0, "R", true, 0, "")
	}
	pdf.Ln(-1)

	if bundle.Failed > 0 {
		pdf.Ln(pdfLineHeight / 2)
		pdf.SetFont("Helvetica", "", pdfFontSize-1)
		pdf.SetTextColor(180, 0, 0)
		pdf.MultiCell(contentWidth, pdfLineHeight, fmt.Sprintf("Files that could not be parsed: %d", bundle.Failed), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.Ln(pdfLineHeight)
	pdf.SetFont("Helvetica", "B", pdfFontSize+1)
	pdf.CellFormat(contentWidth, pdfLineHeight, "Catalog volume", "", 1, "L", false, 0, "")
	pdf.SetFont("Courier", "", pdfFontSize-1)
	pdf.MultiCell(contentWidth, pdfLineHeight-1, string(catalog), "", "L", false)

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("failed to save PDF to %s: %w", outputPath, err)
	}
	return nil
}
