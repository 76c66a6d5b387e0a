package images

import (
	"context"
	"io"
)

// Uploaded describes a stored image: the public URL to serve and the
// storage key needed to delete it later.
type Uploaded struct {
	URL      string
	PublicID string
}

// Store is the object-store boundary for todo images. Destroy is called
// best-effort on replacement, removal and todo deletion; callers must not
// let its failure block the primary mutation.
type Store interface {
	Upload(ctx context.Context, r io.Reader, filename string) (Uploaded, error)
	Destroy(ctx context.Context, publicID string) error
}
