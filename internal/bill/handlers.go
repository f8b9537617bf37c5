package bill

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/ebon-tracker/internal/ebon"
	"github.com/zombor/ebon-tracker/internal/extract"
)

const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// errorBody is the JSON returned for rejected uploads
type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// writeIngestError maps an ingest failure onto a status code
func writeIngestError(w http.ResponseWriter, err error) {
	if code := ebon.Code(err); code != "" {
		body := errorBody{Error: err.Error(), Code: code}
		var mismatch *ebon.TotalMismatchError
		if errors.As(err, &mismatch) {
			body.Expected = ebon.FormatNumber(mismatch.Expected)
			body.Actual = ebon.FormatNumber(mismatch.Actual)
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	switch {
	case errors.Is(err, extract.ErrUnsupportedContent):
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: err.Error()})
	case errors.Is(err, extract.ErrUnreadableDocument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}

// detectContentType prefers the part header, falling back to the extension
func detectContentType(header, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// handleUploadPDF ingests one eBon document
func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorMsg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorMsg})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error reading file. Please try again."})
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	outcome, err := s.service.Ingest(r.Context(), UserFrom(r.Context()), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing eBon", "filename", header.Filename, "error", err)
		writeIngestError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, outcome.Bill)
}

// handleListBills returns the caller's bills, newest first
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			corsError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	bills, err := s.service.ListBills(r.Context(), UserFrom(r.Context()), limit)
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if bills == nil {
		bills = []*Bill{}
	}
	writeJSON(w, http.StatusOK, bills)
}

// handleListHashes returns the hashes of documents already uploaded
func (s *Server) handleListHashes(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.service.ListHashes(r.Context(), UserFrom(r.Context()))
	if err != nil {
		slog.Error("Error listing hashes", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	writeJSON(w, http.StatusOK, hashes)
}

// ownedBill loads the bill in the path and hides bills of other users
func (s *Server) ownedBill(w http.ResponseWriter, r *http.Request) (*Bill, bool) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Bill ID required", http.StatusBadRequest)
		return nil, false
	}
	bill, err := s.service.GetBill(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrBillNotFound) {
			slog.Error("Error getting bill", "id", id, "error", err)
		}
		corsError(w, "Bill not found", http.StatusNotFound)
		return nil, false
	}
	if bill.UserID != UserFrom(r.Context()) {
		corsError(w, "Bill not found", http.StatusNotFound)
		return nil, false
	}
	return bill, true
}

// handleGetBill returns a single bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.ownedBill(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

// handleGetBillFile returns the stored document for a bill
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.ownedBill(w, r)
	if !ok {
		return
	}
	data, contentType, err := s.service.GetBillFile(r.Context(), bill.ID)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportBill renders a bill as a spreadsheet or PDF
func (s *Server) handleExportBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.ownedBill(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatXLSX
	}
	data, contentType, err := Export(bill, format)
	if err != nil {
		if errors.Is(err, ErrUnknownFormat) {
			corsError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error exporting bill", "id", bill.ID, "format", format, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ebon-%s.%s"`, bill.DateTime.Format("2006-01-02-150405"), format))
	w.Write(data)
}

// handleDeleteBill deletes a bill
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.ownedBill(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteBill(r.Context(), bill.ID); err != nil {
		slog.Error("Error deleting bill", "id", bill.ID, "error", err)
		corsError(w, "Error deleting bill", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
