// Package leaselock provides expiring Postgres leases so that several workers
// do not extract the same chapter at the same time. A lease is advisory: the
// cache stays correct without it, the lease only saves oracle calls.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease held by another worker")
	ErrLost = errors.New("lease lost")
)

const (
	defaultTTL          = 5 * time.Minute
	defaultWaitInterval = 250 * time.Millisecond
	renewAttempts       = 3
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options controls lease duration and waiting.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	// Wait makes Acquire poll until the lease is free instead of failing
	// with ErrBusy.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	// Holder prefixes lease tokens, e.g. with the worker name.
	Holder string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultWaitInterval
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// Locker hands out leases stored in the extraction_leases table.
type Locker struct {
	db   dbConn
	opts Options
}

func New(pool *pgxpool.Pool, opts Options) *Locker {
	return &Locker{db: pool, opts: opts.withDefaults()}
}

// Lease is a held lease. Context is cancelled when the lease is released or
// can no longer be renewed.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	locker *Locker
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

// ChapterKey returns the lease key for a cache key.
func ChapterKey(cacheKey string) string {
	return "extract:" + cacheKey
}

// Do runs fn while holding the lease for key. fn receives the lease context.
func (l *Locker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Lease] release failed", "key", key, "err", err)
		}
	}()
	return fn(lease.Context)
}

// Acquire takes the lease for key. Without Options.Wait a held lease returns
// ErrBusy immediately.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := l.opts.Holder + id
	ttlMs := l.opts.TTL.Milliseconds()

	for {
		ok, err := l.tryAcquire(ctx, key, token, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !l.opts.Wait {
			return nil, ErrBusy
		}
		logger.Debug("[Lease] waiting", "key", key)
		if err := sleepWithJitter(ctx, l.opts.WaitInterval, l.opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		locker:  l,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go lease.renewLoop(l.opts.RenewEvery, ttlMs)
	return lease, nil
}

func (l *Locker) tryAcquire(ctx context.Context, key, token string, ttlMs int64) (bool, error) {
	var got string
	err := l.db.QueryRow(ctx, tryAcquireSQL, key, token, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

// Release stops renewal and deletes the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})
	_, err := l.locker.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) renewLoop(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(ttlMs); err != nil {
				logger.Warn("[Lease] lost", "key", l.Key, "err", err)
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renew(ttlMs int64) error {
	var err error
	for attempt := range renewAttempts {
		if attempt > 0 {
			if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		var got string
		err = l.locker.db.QueryRow(ctx, renewSQL, l.Key, l.Token, ttlMs).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
	}
	return err
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO extraction_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE extraction_leases.expires_at < now()
   OR extraction_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE extraction_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM extraction_leases
WHERE lease_key = $1 AND holder = $2;
`
