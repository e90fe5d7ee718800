package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrClosed is returned by Acquire after the pool has been closed.
var ErrClosed = errors.New("connection pool closed")

// Session is the surface the pool lends out. *sql.Conn satisfies it;
// tests substitute fakes.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PingContext(ctx context.Context) error
	Close() error
}

// Config describes the backing MySQL server and the pool size.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Size     int

	// Timeout bounds dialing and every read/write on a session. The
	// executor cannot cancel in-flight store calls, so this store-side
	// bound is what keeps a stuck session from wedging a worker forever.
	Timeout time.Duration
}

// DSN renders the driver connection string.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.Timeout = c.Timeout
	mc.ReadTimeout = c.Timeout
	mc.WriteTimeout = c.Timeout
	return mc.FormatDSN()
}

// Pool is a fixed-size pool of pre-opened store sessions. Acquire lends
// a session exclusively to one caller; Release returns it and wakes a
// waiter if any. At steady state idle + borrowed == Size.
//
// Waiting is starvation-free but not strictly FIFO: contended acquires
// are served in the order the runtime wakes channel receivers.
//
// Broken sessions are not detected or replaced here. A store error
// surfaces to the caller and the session goes back into the pool as
// is. See Release.
type Pool struct {
	sessions chan Session
	done     chan struct{}
	size     int

	mu     sync.Mutex
	closed bool
	inUse  int

	db *sql.DB
}

// Open connects to MySQL and fills the pool with cfg.Size dedicated
// sessions, pinging each one. If any session fails to open, the ones
// already opened are closed in reverse order and the error is returned.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", cfg.Size)
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	// The pool owns connection lifecycle; keep database/sql from
	// holding spares of its own.
	db.SetMaxOpenConns(cfg.Size)
	db.SetMaxIdleConns(cfg.Size)
	db.SetConnMaxLifetime(0)

	opened := make([]Session, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		conn, err := db.Conn(ctx)
		if err == nil {
			err = conn.PingContext(ctx)
			if err != nil {
				conn.Close()
			}
		}
		if err != nil {
			for j := len(opened) - 1; j >= 0; j-- {
				opened[j].Close()
			}
			db.Close()
			return nil, fmt.Errorf("open session %d/%d: %w", i+1, cfg.Size, err)
		}
		opened = append(opened, conn)
	}

	p := NewFromSessions(opened)
	p.db = db
	return p, nil
}

// NewFromSessions builds a pool over already-opened sessions. Used by
// Open and by tests that supply fakes.
func NewFromSessions(sessions []Session) *Pool {
	p := &Pool{
		sessions: make(chan Session, len(sessions)),
		done:     make(chan struct{}),
		size:     len(sessions),
	}
	for _, s := range sessions {
		p.sessions <- s
	}
	return p
}

// Acquire blocks until a session is idle or ctx expires. The session is
// lent exclusively; the caller must Release it exactly once.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case s := <-p.sessions:
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			s.Close()
			return nil, ErrClosed
		}
		p.inUse++
		p.mu.Unlock()
		return s, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a borrowed session to the idle set and wakes one
// waiter. If the pool has been closed in the meantime, the session is
// closed instead of being returned.
//
// The session is returned even after a store error; it is not checked
// or replaced. A *sql.Conn whose connection the driver reported bad has
// closed itself, and every later call on it fails with sql.ErrConnDone.
func (p *Pool) Release(s Session) {
	p.mu.Lock()
	p.inUse--
	if p.closed {
		p.mu.Unlock()
		s.Close()
		return
	}
	p.mu.Unlock()
	p.sessions <- s
}

// InUse returns the number of currently borrowed sessions.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Size returns the configured session count.
func (p *Pool) Size() int {
	return p.size
}

// Close shuts the pool down: idle sessions are closed now, borrowed
// ones when released, and pending or future Acquires fail with
// ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)

	var firstErr error
	for {
		select {
		case s := <-p.sessions:
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			if p.db != nil {
				if err := p.db.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}
	}
}
