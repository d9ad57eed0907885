package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrLeaseHeld = errors.New("storage: database is held by another writer")

// Lease is the single-writer claim on a store. Collections are written as
// whole snapshots, so two writers on one database would overwrite each
// other; only the lease holder may write.
type Lease struct {
	Holder    string
	PID       int
	ExpiresAt time.Time
}

// LeaseError reports the current holder of a lease that could not be taken.
type LeaseError struct {
	Current Lease
}

func (e *LeaseError) Error() string {
	return fmt.Sprintf("%v (pid %d, expires %s)", ErrLeaseHeld, e.Current.PID, e.Current.ExpiresAt.Local().Format(time.TimeOnly))
}

func (e *LeaseError) Unwrap() error { return ErrLeaseHeld }

// WriterLease is implemented by stores that arbitrate between processes.
// AcquireLease both takes and renews: it succeeds when the lease is free,
// expired at now, or already owned by holder.
type WriterLease interface {
	AcquireLease(ctx context.Context, holder string, pid int, now time.Time, ttl time.Duration) error
	ReleaseLease(ctx context.Context, holder string) error
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, holder string, pid int, now time.Time, ttl time.Duration) error {
	if holder == "" || ttl <= 0 {
		return errors.New("storage: lease needs a holder and a positive ttl")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO writer_lease (id, holder, pid, expires_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET holder = excluded.holder, pid = excluded.pid, expires_at = excluded.expires_at
		WHERE writer_lease.holder = excluded.holder OR writer_lease.expires_at <= ?`,
		holder, pid, mustTime(now.Add(ttl)), mustTime(now),
	)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	current, err := s.currentLease(ctx)
	if err != nil {
		return err
	}
	return &LeaseError{Current: current}
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM writer_lease WHERE id = 1 AND holder = ?`, holder)
	return err
}

func (s *SQLiteStore) currentLease(ctx context.Context) (Lease, error) {
	var out Lease
	var expires string
	err := s.db.QueryRowContext(ctx, `SELECT holder, pid, expires_at FROM writer_lease WHERE id = 1`).
		Scan(&out.Holder, &out.PID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Lease{}, ErrNotFound
	}
	if err != nil {
		return Lease{}, err
	}
	out.ExpiresAt, err = time.Parse(sqliteTimeLayout, expires)
	return out, err
}
