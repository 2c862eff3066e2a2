package blob

import "context"

// Store stages bytes at a temporary, publicly fetchable URL. Submit-and-poll
// providers consume URLs rather than inline bytes, so the input image is
// parked here for the duration of one request and deleted on every exit path.
type Store interface {
	// Put uploads data and returns its public URL.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Delete removes a staged object. Best-effort; callers may ignore errors.
	Delete(ctx context.Context, url string) error
}
