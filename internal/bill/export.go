package bill

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/ebon-tracker/internal/ebon"
)

// Export formats
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ErrUnknownFormat is returned for an export format other than xlsx or pdf
var ErrUnknownFormat = errors.New("unknown export format")

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateTimeLayout  = "02.01.2006 15:04:05"
)

// Export renders bill in format and returns the bytes and their MIME type
func Export(bill *Bill, format string) ([]byte, string, error) {
	switch format {
	case FormatXLSX:
		data, err := BuildXLSX(bill)
		if err != nil {
			return nil, "", fmt.Errorf("building xlsx: %w", err)
		}
		return data, xlsxContentType, nil
	case FormatPDF:
		data, err := BuildPDF(bill)
		if err != nil {
			return nil, "", fmt.Errorf("building pdf: %w", err)
		}
		return data, "application/pdf", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return ebon.FormatNumber(d.Decimal)
}

type cellValue struct {
	cell  string
	value any
}

// setCells writes values and stops at the first error
func setCells(f *excelize.File, sheet string, values []cellValue) error {
	for _, v := range values {
		if err := f.SetCellValue(sheet, v.cell, v.value); err != nil {
			return err
		}
	}
	return nil
}

// setDecimal writes d as a numeric cell from its exact decimal text
func setDecimal(f *excelize.File, sheet, cell string, d decimal.Decimal, style int) error {
	if err := f.SetCellDefault(sheet, cell, d.String()); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, style)
}

// BuildXLSX renders a bill as a two sheet workbook
func BuildXLSX(bill *Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	moneyFmt, kgFmt := "0.00", "0.000"
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, err
	}
	kg, err := f.NewStyle(&excelize.Style{CustomNumFmt: &kgFmt})
	if err != nil {
		return nil, err
	}

	err = setCells(f, summarySheet, []cellValue{
		{"A1", "REWE eBon"},
		{"A3", "Date"},
		{"B3", bill.DateTime.Format(dateTimeLayout)},
		{"A4", "Total (EUR)"},
		{"A5", "Items"},
		{"B5", len(bill.Expenses)},
		{"A6", "File hash"},
		{"B6", bill.FileHash},
	})
	if err != nil {
		return nil, err
	}
	if err := setDecimal(f, summarySheet, "B4", bill.Value, money); err != nil {
		return nil, err
	}

	headers := []string{"Name", "Value", "Quantity", "Price per item", "Weight (kg)", "Price per kg"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(itemsSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, e := range bill.Expenses {
		row := i + 2
		err := setCells(f, itemsSheet, []cellValue{
			{fmt.Sprintf("A%d", row), e.Name},
			{fmt.Sprintf("C%d", row), e.Quantity},
		})
		if err != nil {
			return nil, err
		}
		if err := setDecimal(f, itemsSheet, fmt.Sprintf("B%d", row), e.Value, money); err != nil {
			return nil, err
		}
		optional := []struct {
			col   string
			value decimal.NullDecimal
			style int
		}{
			{"D", e.PricePerItem, money},
			{"E", e.Weight, kg},
			{"F", e.PricePerKg, money},
		}
		for _, o := range optional {
			if !o.value.Valid {
				continue
			}
			if err := setDecimal(f, itemsSheet, fmt.Sprintf("%s%d", o.col, row), o.value.Decimal, o.style); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a bill as a one page item table
func BuildPDF(bill *Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "REWE eBon")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", bill.DateTime.Format(dateTimeLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %s EUR", ebon.FormatNumber(bill.Value)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Name", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Per item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "kg", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Per kg", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, e := range bill.Expenses {
		pdf.CellFormat(70, 6, tr(e.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, ebon.FormatNumber(e.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", e.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, nullable(e.PricePerItem), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, nullable(e.Weight), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, nullable(e.PricePerKg), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
