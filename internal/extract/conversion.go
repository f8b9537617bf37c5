package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// transcribePrompt asks a vision model for the receipt text verbatim so the
// result can go through the same parser as a PDF text layer.
const transcribePrompt = `You are reading a photographed or scanned REWE supermarket receipt (eBon).
Transcribe every printed line of the receipt exactly as it appears, top to bottom.

Rules:
- Output one receipt line per text line, nothing else.
- Keep the German text, spelling and abbreviations as printed.
- Keep amounts with a decimal comma (e.g. 1,99), never convert to a dot.
- Keep the tax letter after each amount (e.g. "BIO BANANE 1,99 B").
- Keep weight lines such as "0,765 kg x 2,99 EUR/kg" and quantity lines such as "2 Stk x 0,89".
- Keep the total line "SUMME EUR" and the date and time lines unchanged.
- Do not add commentary, headings or markdown code blocks.`

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG converts JPEG, GIF and HEIC/HEIF images to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// toPNG returns the document as a PNG image, converting PDFs and other image
// formats. Failures wrap ErrUnreadableDocument.
func toPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := normalize(contentType)
	var (
		out []byte
		err error
	)
	switch {
	case mimeType == "application/pdf":
		out, err = pdfToImage(data)
	case mimeType == "image/png" && !isHEICFormat(data):
		return data, nil
	default:
		out, err = imageToPNG(data, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return out, nil
}

// cleanTranscript strips markdown fences some models wrap their answer in
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text) + "\n"
}
