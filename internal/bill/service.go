package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/ebon-tracker/internal/ebon"
	"github.com/zombor/ebon-tracker/internal/extract"
	"github.com/zombor/ebon-tracker/internal/metrics"
)

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Outcome is the result of ingesting one document
type Outcome struct {
	Bill     *Bill
	Existing bool
}

// Service handles bill operations
type Service struct {
	db          DB
	extractor   extract.Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	parseOpts   []ebon.Option
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor extract.Extractor, storage Storage, opts ...ebon.Option) *Service {
	return NewServiceWithDeps(db, extractor, storage, &defaultIDGenerator{}, &defaultTimeSource{}, opts...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor extract.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource, opts ...ebon.Option) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		parseOpts:   opts,
	}
}

// Ingest extracts, parses and stores one eBon for userID. An eBon whose
// transaction time is already stored resolves to the existing bill, and
// nothing is written unless the receipt reconciles with its declared total.
func (s *Service) Ingest(ctx context.Context, userID, filename string, data []byte, contentType string) (*Outcome, error) {
	hash := Hash(data)
	if id, found, err := s.db.FindByHash(ctx, userID, hash); err != nil {
		return nil, fmt.Errorf("looking up bill by hash: %w", err)
	} else if found {
		return s.existing(ctx, id)
	}

	text, err := s.extractor.ExtractText(ctx, data, contentType)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultExtractFailed)
		slog.Error("Failed to extract eBon text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	receipt, err := s.parse(text, filename)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultRejected)
		return nil, fmt.Errorf("parsing ebon: %w", err)
	}

	res, err := Resolve(ctx, data, receipt.Timestamp, userID, s.db)
	if err != nil {
		return nil, err
	}
	if res.Existing {
		return s.existing(ctx, res.ID)
	}

	bill := &Bill{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		DateTime:  receipt.Timestamp,
		Value:     receipt.Total,
		FileHash:  res.Hash,
		Expenses:  expensesFrom(receipt.Items),
		CreatedAt: s.timeSource.Now(),
	}

	savedPath, err := s.storage.Save(ctx, documentName(userID, res.Hash, filename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}
	bill.Filename = savedPath

	if _, err := s.db.Insert(ctx, bill); err != nil {
		if errors.Is(err, ErrDuplicateBill) {
			// Lost a race with a concurrent upload of the same eBon. A
			// byte-identical winner shares the stored document.
			outcome, cerr := s.afterConflict(ctx, userID, hash, receipt.Timestamp)
			if cerr == nil && outcome.Bill.Filename != savedPath {
				if derr := s.storage.Delete(ctx, savedPath); derr != nil {
					slog.Warn("Failed to delete file", "filename", savedPath, "error", derr)
				}
			}
			return outcome, cerr
		}
		if derr := s.storage.Delete(ctx, savedPath); derr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", derr)
		}
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	metrics.ObserveIngest(metrics.ResultCreated)
	slog.Info("Stored eBon", "id", bill.ID, "user", userID, "datetime", bill.DateTime, "items", len(bill.Expenses), "total", bill.Value.String())
	return &Outcome{Bill: bill}, nil
}

// parse runs the parsing core and records its outcome
func (s *Service) parse(text, filename string) (*ebon.Receipt, error) {
	start := time.Now()
	receipt, err := ebon.Parse(text, s.parseOpts...)
	metrics.ObserveParse(ebon.Code(err), time.Since(start))
	if err == nil {
		return receipt, nil
	}

	var lineErr *ebon.LineError
	var mismatch *ebon.TotalMismatchError
	switch {
	case errors.Is(err, ebon.ErrDanglingContinuation) && errors.As(err, &lineErr):
		slog.Warn("Continuation line without a product", "filename", filename, "line", lineErr.Line, "text", lineErr.Text)
	case errors.As(err, &mismatch):
		slog.Warn("eBon items do not add up to the printed total",
			"filename", filename,
			"expected", mismatch.Expected.String(),
			"actual", mismatch.Actual.String(),
		)
	default:
		slog.Debug("eBon rejected", "filename", filename, "code", ebon.Code(err), "error", err)
	}
	return nil, err
}

func (s *Service) existing(ctx context.Context, id string) (*Outcome, error) {
	bill, err := s.db.GetBill(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting existing bill: %w", err)
	}
	metrics.ObserveIngest(metrics.ResultExisting)
	return &Outcome{Bill: bill, Existing: true}, nil
}

func (s *Service) afterConflict(ctx context.Context, userID, hash string, ts time.Time) (*Outcome, error) {
	id, found, err := s.db.FindByTimestamp(ctx, userID, ts)
	if err != nil {
		return nil, fmt.Errorf("looking up bill by timestamp: %w", err)
	}
	if !found {
		id, found, err = s.db.FindByHash(ctx, userID, hash)
		if err != nil {
			return nil, fmt.Errorf("looking up bill by hash: %w", err)
		}
	}
	if !found {
		return nil, fmt.Errorf("resolving duplicate: %w", ErrDuplicateBill)
	}
	return s.existing(ctx, id)
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(ctx context.Context, id string) (*Bill, error) {
	bill, err := s.db.GetBill(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns the user's bills, newest first
func (s *Service) ListBills(ctx context.Context, userID string, limit int) ([]*Bill, error) {
	bills, err := s.db.ListBills(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// ListHashes returns the document hashes the user already uploaded
func (s *Service) ListHashes(ctx context.Context, userID string) ([]string, error) {
	hashes, err := s.db.ListHashes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing hashes: %w", err)
	}
	return hashes, nil
}

// DeleteBill removes a bill and its file
func (s *Service) DeleteBill(ctx context.Context, id string) error {
	bill, err := s.db.GetBill(ctx, id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if err := s.storage.Delete(ctx, bill.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", bill.Filename, "error", err)
	}

	if err := s.db.DeleteBill(ctx, id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// GetBillFile retrieves the stored document for a bill
func (s *Service) GetBillFile(ctx context.Context, id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(ctx, bill.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, contentTypeFor(bill.Filename), nil
}
