package bill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Storage defines the interface for raw eBon document storage
type Storage interface {
	// Save saves a file and returns the path/filename
	Save(ctx context.Context, filename string, data []byte) (string, error)

	// Get retrieves a file by path
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes a file
	Delete(ctx context.Context, path string) error
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	knownExts   = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".heic": true, ".heif": true, ".gif": true, ".txt": true}
)

// documentName returns the content addressed name an eBon is stored under,
// scoped to the user so deleting one user's bill never removes another's file
func documentName(userID, hash, original string) string {
	owner := unsafeChars.ReplaceAllString(userID, "")
	if len(owner) > 50 {
		owner = owner[:50]
	}
	if owner == "" {
		owner = "user"
	}
	ext := strings.ToLower(filepath.Ext(original))
	if !knownExts[ext] {
		ext = ".pdf"
	}
	return fmt.Sprintf("%s_ebon-%s%s", owner, hash, ext)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(_ context.Context, filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(_ context.Context, path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// GCSStorage keeps documents in a Google Cloud Storage bucket
type GCSStorage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStorage connects to bucket using application default credentials.
// Objects are written below prefix.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSStorage{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (g *GCSStorage) object(name string) *storage.ObjectHandle {
	if g.prefix == "" {
		return g.bucket.Object(name)
	}
	return g.bucket.Object(g.prefix + "/" + name)
}

// Save writes the document only if the object does not exist yet. Names are
// content addressed, so an existing object already holds the same bytes.
func (g *GCSStorage) Save(ctx context.Context, filename string, data []byte) (string, error) {
	w := g.object(filename).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return filename, nil
		}
		return "", fmt.Errorf("finalizing gcs object: %w", err)
	}
	return filename, nil
}

// Get reads a document from the bucket
func (g *GCSStorage) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gcs object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gcs object: %w", err)
	}
	return data, nil
}

// Delete removes a document from the bucket
func (g *GCSStorage) Delete(ctx context.Context, path string) error {
	if err := g.object(path).Delete(ctx); err != nil {
		return fmt.Errorf("deleting gcs object: %w", err)
	}
	return nil
}

// Close releases the GCS client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}

// contentTypeFor maps a stored document name back to its MIME type
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/pdf"
	}
}
