package journal

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vango-go/vai-duet/pkg/core/requests"
)

type fakeExec struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func testRecord() requests.Record {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return requests.Record{
		ID:        "generate_video-c1-1",
		Tool:      "generate_video",
		CallID:    "c1",
		Status:    requests.StatusReady,
		Result:    map[string]any{"kind": "video", "uri": "https://example.test/v.mp4"},
		CreatedAt: at,
		UpdatedAt: at.Add(time.Minute),
	}
}

func TestPostgresRecordUpsertsArgs(t *testing.T) {
	db := &fakeExec{}
	p := &Postgres{db: db}
	if err := p.Record(context.Background(), "sess_1", testRecord()); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if !strings.Contains(db.sql, "ON CONFLICT (request_id)") {
		t.Fatalf("sql=%q, want upsert", db.sql)
	}
	if len(db.args) != 9 {
		t.Fatalf("len(args)=%d, want 9", len(db.args))
	}
	if db.args[0] != "generate_video-c1-1" || db.args[1] != "sess_1" || db.args[4] != "ready" {
		t.Fatalf("args=%v", db.args)
	}
	result, ok := db.args[6].([]byte)
	if !ok || !strings.Contains(string(result), `"uri":"https://example.test/v.mp4"`) {
		t.Fatalf("result arg=%v", db.args[6])
	}
}

func TestPostgresRecordNilResult(t *testing.T) {
	db := &fakeExec{}
	p := &Postgres{db: db}
	rec := testRecord()
	rec.Status = requests.StatusPending
	rec.Result = nil
	if err := p.Record(context.Background(), "sess_1", rec); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if b, _ := db.args[6].([]byte); b != nil {
		t.Fatalf("result arg=%q, want nil", b)
	}
}

func TestPostgresRecordWrapsExecError(t *testing.T) {
	boom := errors.New("conn reset")
	p := &Postgres{db: &fakeExec{err: boom}}
	err := p.Record(context.Background(), "sess_1", testRecord())
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := fs.ReadFile(migrationsFS(), "00001_generation_requests.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "generation_requests"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

type fakeRecorder struct {
	mu  sync.Mutex
	got []string
	err error
}

func (f *fakeRecorder) Record(_ context.Context, sessionID string, rec requests.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, sessionID+"/"+rec.ID)
	return f.err
}

func (f *fakeRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriterDrainsOnCancel(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewWriter(rec, 4, discardLogger())
	w.Enqueue("s", requests.Record{ID: "a"})
	w.Enqueue("s", requests.Record{ID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("got=%v, want both writes flushed", got)
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewWriter(rec, 1, discardLogger())
	w.Enqueue("s", requests.Record{ID: "a"})
	w.Enqueue("s", requests.Record{ID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "s/a" {
		t.Fatalf("got=%v, want only s/a", got)
	}
}

func TestWriterSurvivesRecordErrors(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("down")}
	w := NewWriter(rec, 4, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	w.Enqueue("s", requests.Record{ID: "a"})
	w.Enqueue("s", requests.Record{ID: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("writes=%v, want 2", rec.snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	w.Enqueue("s", requests.Record{ID: "a"})
	w.Run(context.Background())

	NewWriter(nil, 0, nil).Enqueue("s", requests.Record{ID: "a"})
}
