package messages

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type fakeRow struct {
	id       pgtype.UUID
	inserted bool
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 2 {
		return pgx.ErrNoRows
	}
	*dest[0].(*pgtype.UUID) = r.id
	*dest[1].(*bool) = r.inserted
	return nil
}

type fakeDB struct {
	row      fakeRow
	lastSQL  string
	lastArgs []any
	execSQL  []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

type fakeChecker struct {
	supported bool
	seen      []string
}

func (f *fakeChecker) IsQuerySupported(text string) bool {
	f.seen = append(f.seen, text)
	return f.supported
}

func testUUID(t *testing.T) pgtype.UUID {
	t.Helper()
	var id pgtype.UUID
	if err := id.Scan("0d9bd649-52a6-47fd-a9f1-4cebb0a282f1"); err != nil {
		t.Fatalf("seed uuid: %v", err)
	}
	return id
}

func TestStoreInsertsAndReportsCreated(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{id: testUUID(t), inserted: true}}
	checker := &fakeChecker{supported: true}
	svc := NewService(nil, db, checker)

	result, err := svc.Store(context.Background(), StoreInput{
		MessageID: "SM123",
		Platform:  "whatsapp",
		Sender:    "+15550001111",
		Content:   "how many invoices?",
		TenantID:  "t-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Created {
		t.Fatal("expected Created=true for a fresh insert")
	}
	if result.ID != "0d9bd649-52a6-47fd-a9f1-4cebb0a282f1" {
		t.Fatalf("unexpected id: %q", result.ID)
	}
	if !strings.Contains(db.lastSQL, "ON CONFLICT (message_id) DO UPDATE SET updated_at = now()") {
		t.Fatalf("expected idempotent upsert, got:\n%s", db.lastSQL)
	}
	if len(checker.seen) != 1 || checker.seen[0] != "how many invoices?" {
		t.Fatalf("expected write-time classification, saw %v", checker.seen)
	}
}

func TestStoreDuplicateReturnsSameID(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{id: testUUID(t), inserted: false}}
	svc := NewService(nil, db, &fakeChecker{})

	result, err := svc.Store(context.Background(), StoreInput{MessageID: "SM123", Platform: "whatsapp", Sender: "+1555", Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created {
		t.Fatal("expected Created=false on the conflict path")
	}
	if result.ID != "0d9bd649-52a6-47fd-a9f1-4cebb0a282f1" {
		t.Fatalf("expected the existing row id, got %q", result.ID)
	}
}

func TestStoreEmptyContentPlaceholder(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{id: testUUID(t), inserted: true}}
	checker := &fakeChecker{supported: true}
	svc := NewService(nil, db, checker)

	if _, err := svc.Store(context.Background(), StoreInput{MessageID: "SM1", Platform: "whatsapp", Sender: "+1555", Content: "   "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.lastArgs[3] != EmptyContentPlaceholder {
		t.Fatalf("expected placeholder content, got %v", db.lastArgs[3])
	}
	if len(checker.seen) != 0 {
		t.Fatal("placeholder content must skip query classification")
	}
	if db.lastArgs[6] != false {
		t.Fatalf("expected is_query=false, got %v", db.lastArgs[6])
	}
}

func TestStoreFileUploadPlaceholderSkipsClassification(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{id: testUUID(t), inserted: true}}
	checker := &fakeChecker{supported: true}
	svc := NewService(nil, db, checker)

	if _, err := svc.Store(context.Background(), StoreInput{MessageID: "SM2", Platform: "slack", Sender: "U7", Content: FileUploadPlaceholder}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checker.seen) != 0 {
		t.Fatal("file placeholder must skip query classification")
	}
}

func TestStoreRequiresMessageID(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeDB{}, nil)
	if _, err := svc.Store(context.Background(), StoreInput{Content: "hi"}); err == nil {
		t.Fatal("expected error for missing message id")
	}
}
