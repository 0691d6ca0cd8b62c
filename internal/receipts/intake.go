// Package receipts accepts uploaded receipt images and keeps them in a
// blob store until the vision model has read them.
package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

var (
	ErrEmpty           = errors.New("receipt is empty")
	ErrTooLarge        = errors.New("receipt exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported receipt type: allowed png, jpg, jpeg")
	ErrInvalidImage    = errors.New("receipt is not a readable image")
)

// allowedExtensions maps accepted extensions to their MIME type.
var allowedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BlobStore keeps receipt bytes addressable by URI.
type BlobStore interface {
	// Put stores data under name and returns its URI.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Get returns the bytes stored at uri.
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Receipt describes a stored upload.
type Receipt struct {
	ID         string    `json:"receipt_id"`
	URI        string    `json:"uri"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mime_type"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Intake validates uploads and writes them to a BlobStore.
type Intake struct {
	store   BlobStore
	maxSize int
	now     func() time.Time
}

// NewIntake creates an Intake backed by store.
func NewIntake(store BlobStore) *Intake {
	return &Intake{store: store, maxSize: MaxSize, now: time.Now}
}

// Accept checks the extension allow-list and the image header, then stores
// the upload under a unique, sanitized name.
func (i *Intake) Accept(ctx context.Context, filename string, data []byte) (*Receipt, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > i.maxSize {
		return nil, ErrTooLarge
	}

	clean := SanitizeFilename(filename)
	mimeType, ok := allowedExtensions[strings.ToLower(filepath.Ext(clean))]
	if !ok {
		return nil, ErrUnsupportedType
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	now := i.now()
	id := uuid.NewString()
	objectName := fmt.Sprintf("receipts/%s/%s-%s", now.Format("2006/01/02"), id, clean)

	uri, err := i.store.Put(ctx, objectName, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("Accept: storing receipt: %w", err)
	}

	return &Receipt{
		ID:         id,
		URI:        uri,
		Filename:   clean,
		MIMEType:   mimeType,
		Size:       len(data),
		UploadedAt: now,
	}, nil
}

// Fetch returns the bytes of a previously accepted receipt.
func (i *Intake) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return i.store.Get(ctx, uri)
}

// SanitizeFilename drops any directory part and replaces characters outside
// [A-Za-z0-9._-] with underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" {
		base = ""
	}
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "receipt"
	}
	return base
}

// MIMETypeFor picks the image MIME type from the file extension, then by
// sniffing the bytes, defaulting to image/jpeg.
func MIMETypeFor(filename string, data []byte) string {
	if t, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	if len(data) > 0 {
		if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/jpeg"
}

// FilenameFromURI extracts the object's base name.
// e.g. "gs://bucket/receipts/2024/03/15/id-lunch.jpg" → "id-lunch.jpg"
func FilenameFromURI(uri string) string {
	trimmed := uri
	for _, scheme := range []string{gcsScheme, fileScheme} {
		trimmed = strings.TrimPrefix(trimmed, scheme)
	}
	return filepath.Base(trimmed)
}
