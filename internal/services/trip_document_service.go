package services

import (
	"bytes"
	"fmt"
	"strconv"

	"tripmind_go_backend/internal/models"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TripDocumentService renders printable confirmations for published trips.
type TripDocumentService struct {
	issuer string
}

func NewTripDocumentService(issuer string) *TripDocumentService {
	if issuer == "" {
		issuer = "TripMind"
	}
	return &TripDocumentService{issuer: issuer}
}

// ConfirmationPDF lays out a one-page A4 confirmation. Times are shown in the
// user's zone.
func (s *TripDocumentService) ConfirmationPDF(trip *models.Trip, locale LocaleInfo) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; place names arrive as UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle("Trip confirmation", true)
	pdf.SetAuthor(s.issuer, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 12, tr(s.issuer+" trip confirmation"))
	pdf.Ln(16)

	pdf.SetFont("Arial", "", 12)
	for _, row := range confirmationRows(trip, locale) {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(45, 8, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 8, tr(row[1]), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render trip confirmation: %w", err)
	}
	return buf.Bytes(), nil
}

func confirmationRows(trip *models.Trip, locale LocaleInfo) [][2]string {
	rows := [][2]string{
		{"Trip", trip.ID.String()},
		{"Role", cases.Title(language.English).String(trip.Role)},
		{"From", trip.OriginText},
		{"To", trip.DestText},
		{"Departure", locale.FormatTime(trip.DepartureTime)},
		{"Status", trip.Status},
	}
	if trip.Seats != nil {
		rows = append(rows, [2]string{"Seats", strconv.Itoa(*trip.Seats)})
	}
	if trip.VehicleType != nil && *trip.VehicleType != "" {
		rows = append(rows, [2]string{"Vehicle", *trip.VehicleType})
	}
	if trip.Currency != "" {
		rows = append(rows, [2]string{"Currency", trip.Currency})
	}
	return rows
}
