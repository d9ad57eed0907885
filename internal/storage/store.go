package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// KV is the persistence contract the engines depend on. Values are opaque
// bytes; callers serialize whole collections.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KeyLister is implemented by stores that can enumerate keys.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// FiringLog records automation firings for history views.
type FiringLog interface {
	AppendFiring(ctx context.Context, in FiringRecord) error
	ListFirings(ctx context.Context, filter FiringListFilter) ([]FiringRecord, error)
}

// Store is what the companion service persists into.
type Store interface {
	KV
	FiringLog
	WriterLease
}

type FiringRecord struct {
	ID             string
	AutomationID   string
	AutomationName string
	ActionType     string
	Delivered      bool
	SMSStatus      string
	Detail         string
	FiredAt        time.Time
}

type FiringListFilter struct {
	AutomationID string
	Since        *time.Time
	Limit        int
	Offset       int
}
