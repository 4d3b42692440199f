package judge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/elmanelman/sql-judge/provision"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Session is a connection reserved for one judging attempt: the schema
// preview is provisioned and both queries run on it.
type Session struct {
	Conn    *sqlx.Conn
	release func(ctx context.Context) error
}

func (s *Session) Release(ctx context.Context) error {
	return s.release(ctx)
}

// Isolation hands out sessions so that concurrent attempts never observe
// each other's provisioning.
type Isolation interface {
	Acquire(ctx context.Context, questionKey string, plan *provision.Plan) (*Session, error)
}

// NewIsolation returns the isolation policy named by policy.
func NewIsolation(policy string, conn dbconn.Conn, logger *zap.Logger) (Isolation, error) {
	switch policy {
	case config.PolicyLock, "":
		return NewLockIsolation(conn), nil
	case config.PolicyScratch:
		return NewScratchIsolation(conn, logger), nil
	}
	return nil, errors.Newf("unknown isolation policy %q", policy)
}

// LockIsolation serializes attempts touching the same question or the same
// table names on the shared judging database.
type LockIsolation struct {
	conn  dbconn.Conn
	locks *keyedLock
}

func NewLockIsolation(conn dbconn.Conn) *LockIsolation {
	return &LockIsolation{conn: conn, locks: newKeyedLock()}
}

func (l *LockIsolation) Acquire(ctx context.Context, questionKey string, plan *provision.Plan) (*Session, error) {
	unlock, err := l.locks.lockAll(ctx, lockKeys(questionKey, plan))
	if err != nil {
		return nil, err
	}
	c, err := l.conn.DB().Connx(ctx)
	if err != nil {
		unlock()
		return nil, errors.Wrapf(err, "error reserving connection on %s", l.conn.ID())
	}
	return &Session{
		Conn: c,
		release: func(context.Context) error {
			defer unlock()
			return c.Close()
		},
	}, nil
}

// lockKeys covers the question and every table the plan rebuilds, so two
// questions sharing a table name also exclude each other.
func lockKeys(questionKey string, plan *provision.Plan) []string {
	var keys []string
	if questionKey != "" {
		keys = append(keys, "question:"+questionKey)
	}
	if plan != nil {
		for _, t := range plan.Tables() {
			keys = append(keys, "table:"+strings.ToLower(t))
		}
	}
	return keys
}

// ScratchIsolation provisions every attempt with a plan into its own
// scratch database, dropped on release. Attempts without a plan read the
// shared database directly.
type ScratchIsolation struct {
	conn   dbconn.Conn
	logger *zap.Logger
}

func NewScratchIsolation(conn dbconn.Conn, logger *zap.Logger) *ScratchIsolation {
	return &ScratchIsolation{conn: conn, logger: logger}
}

func (s *ScratchIsolation) Acquire(ctx context.Context, questionKey string, plan *provision.Plan) (*Session, error) {
	if plan == nil {
		c, err := s.conn.DB().Connx(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "error reserving connection on %s", s.conn.ID())
		}
		return &Session{Conn: c, release: func(context.Context) error { return c.Close() }}, nil
	}

	name := dbconn.ScratchName("judge_")
	scratch, err := s.conn.CreateScratch(ctx, name)
	if err != nil {
		return nil, err
	}
	drop := func(ctx context.Context) error {
		return errors.CombineErrors(scratch.Close(ctx), s.conn.DropScratch(ctx, name))
	}
	c, err := scratch.DB().Connx(ctx)
	if err != nil {
		_ = drop(context.Background())
		return nil, errors.Wrapf(err, "error connecting to scratch database %s", name)
	}
	s.logger.Debug("scratch database created",
		zap.String("database", name),
		zap.String("question_key", questionKey),
	)
	return &Session{
		Conn: c,
		release: func(ctx context.Context) error {
			return errors.CombineErrors(c.Close(), drop(ctx))
		},
	}, nil
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// keyedLock is a set of named mutexes whose acquisition honours context
// cancellation. Entries are dropped once nobody holds or waits on them.
type keyedLock struct {
	mu   sync.Mutex
	keys map[string]*keyEntry
}

func newKeyedLock() *keyedLock {
	return &keyedLock{keys: map[string]*keyEntry{}}
}

func (l *keyedLock) entry(key string) *keyEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *keyedLock) put(key string, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *keyedLock) lock(ctx context.Context, key string) error {
	e := l.entry(key)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.put(key, e)
		return ctx.Err()
	}
}

func (l *keyedLock) unlock(key string) {
	l.mu.Lock()
	e := l.keys[key]
	l.mu.Unlock()
	<-e.sem
	l.put(key, e)
}

// lockAll takes every key in sorted order so that overlapping key sets
// cannot deadlock.
func (l *keyedLock) lockAll(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var held []string
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		if err := l.lock(ctx, k); err != nil {
			unlock()
			return nil, err
		}
		held = append(held, k)
	}
	return unlock, nil
}
