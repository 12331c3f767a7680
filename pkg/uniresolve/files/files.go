// Package files validates uploaded attachments and stores them on local disk
// or in an S3-compatible bucket.
package files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
)

// MaxFileSize is the largest accepted upload (10 MiB).
const MaxFileSize int64 = 10 << 20

// sniffLen is how much of an upload is inspected for its content type
const sniffLen = 3072

// expectedMIME maps each allowed extension to the content type its bytes
// should carry.
var expectedMIME = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain",
}

// Store persists attachment bytes under a key. The returned path is what
// gets recorded on the attachment row and later passed to Open and Delete.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) (bool, error)
}

// New returns the store selected by cfg.Driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.UploadDir)
	case "s3":
		return NewS3Store(cfg), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	ext := path.Ext(strings.ReplaceAll(filename, "\\", "/"))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Validate checks the extension allow-list and the size limit.
func Validate(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return apperr.Invalid("file", "no file selected")
	}
	ext := Extension(filename)
	if _, ok := expectedMIME[ext]; !ok {
		return apperr.Invalid("file", fmt.Sprintf("file type '%s' not allowed, allowed types: pdf, jpg, jpeg, png, doc, docx, txt", ext))
	}
	if size <= 0 {
		return apperr.Invalid("file", "file is empty")
	}
	if size > MaxFileSize {
		return apperr.Invalid("file", "file size too large, maximum size is 10.0MB")
	}
	return nil
}

// NewFilename returns a random stored name that keeps the extension of
// original.
func NewFilename(original string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "." + Extension(original)
}

// Key returns the storage key of a stored file for a complaint.
func Key(complaintID uint, filename string) string {
	return fmt.Sprintf("complaint_%d/%s", complaintID, filename)
}

// Sniff detects the content type of the head of r. It returns the detected
// type, whether it matches the extension of filename, and a reader that
// still yields the full content.
func Sniff(r io.Reader, filename string) (string, bool, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", false, nil, err
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	return detected.String(), matches(detected, Extension(filename)), io.MultiReader(bytes.NewReader(head), r), nil
}

func matches(detected *mimetype.MIME, ext string) bool {
	expected, ok := expectedMIME[ext]
	if !ok {
		return false
	}
	if detected.Is(expected) {
		return true
	}
	// Office files are zip/ole containers and a short head may not reveal
	// more than that.
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(expected) {
			return true
		}
		switch ext {
		case "jpg", "jpeg", "png":
			if strings.HasPrefix(m.String(), "image/") {
				return true
			}
		case "txt":
			if strings.HasPrefix(m.String(), "text/") {
				return true
			}
		case "docx":
			if m.Is("application/zip") {
				return true
			}
		case "doc":
			if m.Is("application/x-ole-storage") {
				return true
			}
		}
	}
	return false
}
