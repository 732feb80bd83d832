package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
)

// Postgres uses session-level advisory locks. The session is a pooled
// connection pinned from TryLock until Unlock.
type Postgres struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[int64]*sql.Conn
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, conns: make(map[int64]*sql.Conn)}
}

func (p *Postgres) TryLock(ctx context.Context, key int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conns[key]; ok {
		return false, nil
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock %d: failed to get connection: %w", key, err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", key, err)
	}
	if !locked {
		conn.Close()
		return false, nil
	}

	p.conns[key] = conn
	return true, nil
}

func (p *Postgres) Unlock(ctx context.Context, key int64) error {
	p.mu.Lock()
	conn, ok := p.conns[key]
	delete(p.conns, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", key); err != nil {
		// the session may still hold the lock; close it instead of pooling it
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return fmt.Errorf("advisory unlock %d: %w", key, err)
	}
	return conn.Close()
}
