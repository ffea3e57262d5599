package port

import "context"

// BlobStore keeps uploaded and generated documents behind opaque references
type BlobStore interface {
	Store(ctx context.Context, content []byte, contentType string) (string, error)
	Retrieve(ctx context.Context, ref string) ([]byte, error)
}

// Locker serialises work on a key. Lock blocks until the key is free or
// ctx is done; the returned func releases the key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
