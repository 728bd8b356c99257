// Package localstore is the durable local tier: a synchronous key/value
// store under the orderSystem_ namespace with a health signal and full
// export/import. It is the fallback substrate when the cloud backend is
// unreachable and the target of every emergency backup.
package localstore

import "errors"

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("localstore: closed")

	// ErrWriteFailed and ErrReadFailed are the injectable failures the
	// MemoryKV adapter uses to exercise health escalation.
	ErrWriteFailed = errors.New("localstore: write failed")
	ErrReadFailed  = errors.New("localstore: read failed")
)

// DurableKV is the adapter interface over the durable substrate. All
// operations are synchronous; Put must be durable on return.
type DurableKV interface {
	Put(key, value string) error
	Get(key string) (string, bool, error)
	Remove(key string) error
	Keys(prefix string) ([]string, error)
	SizeBytes() (int64, error)
	Close() error
}
