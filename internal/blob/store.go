// Package blob stores the original syllabus documents.
package blob

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object is a document to store.
type Object struct {
	OwnerID     string
	Filename    string
	ContentType string
	Data        []byte
}

// Store keeps source documents and hands out opaque references to them.
type Store interface {
	Store(ctx context.Context, obj Object) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	// URLFor returns a time-limited download URL.
	URLFor(ctx context.Context, ref string, ttl time.Duration) (string, error)
	// Delete is a no-op for an unknown ref.
	Delete(ctx context.Context, ref string) error
}

// objectKey builds "<prefix>/<owner>/<uuid>_<filename>".
func objectKey(prefix string, obj Object) string {
	name := safeFilename(obj.Filename)
	owner := safeSegment(obj.OwnerID)
	if owner == "" {
		owner = "anonymous"
	}
	key := owner + "/" + uuid.NewString() + "_" + name
	if p := strings.Trim(prefix, "/"); p != "" {
		key = p + "/" + key
	}
	return key
}

func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = safeSegment(name)
	if name == "" || name == "." {
		return "document"
	}
	return name
}

func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
