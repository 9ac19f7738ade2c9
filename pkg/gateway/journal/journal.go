// Package journal persists generation request records to Postgres so
// operators can audit what each studio session asked for.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vango-go/vai-duet/pkg/core/requests"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Recorder stores the latest state of a request record.
type Recorder interface {
	Record(ctx context.Context, sessionID string, rec requests.Record) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres upserts one row per request id.
type Postgres struct {
	db    execer
	ping  func(ctx context.Context) error
	close func()
}

const upsertSQL = `
INSERT INTO generation_requests
    (request_id, session_id, tool, call_id, status, error, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (request_id) DO UPDATE SET
    status = EXCLUDED.status,
    error = EXCLUDED.error,
    result = EXCLUDED.result,
    updated_at = EXCLUDED.updated_at`

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := Migrate(ctx, db); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{db: pool, ping: pool.Ping, close: pool.Close}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrationsFS())
	if err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply journal migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, sessionID string, rec requests.Record) error {
	var result []byte
	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("encode result for %s: %w", rec.ID, err)
		}
		result = b
	}
	_, err := p.db.Exec(ctx, upsertSQL,
		rec.ID, sessionID, rec.Tool, rec.CallID, string(rec.Status), rec.Error, result,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert request %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping(ctx)
}

func (p *Postgres) Close() {
	if p != nil && p.close != nil {
		p.close()
	}
}

// DefaultQueueSize bounds pending journal writes per writer.
const DefaultQueueSize = 64

type entry struct {
	sessionID string
	rec       requests.Record
}

// Writer moves journal writes off the dispatch path. Enqueue never blocks;
// a full queue drops the write.
type Writer struct {
	rec    Recorder
	queue  chan entry
	logger *slog.Logger
}

func NewWriter(rec Recorder, size int, logger *slog.Logger) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{rec: rec, queue: make(chan entry, size), logger: logger}
}

func (w *Writer) Enqueue(sessionID string, rec requests.Record) {
	if w == nil || w.rec == nil {
		return
	}
	select {
	case w.queue <- entry{sessionID: sessionID, rec: rec}:
	default:
		w.logger.Warn("journal write dropped", "request_id", rec.ID, "status", rec.Status)
	}
}

// Run drains the queue until ctx is done, then writes whatever is still
// buffered using a detached context.
func (w *Writer) Run(ctx context.Context) {
	if w == nil || w.rec == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return
		case e := <-w.queue:
			w.write(ctx, e)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.write(ctx, e)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, e entry) {
	if err := w.rec.Record(ctx, e.sessionID, e.rec); err != nil {
		w.logger.Warn("journal write failed", "request_id", e.rec.ID, "error", err)
	}
}
