package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	first, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed || first.From != 0 {
		t.Errorf("first Migrate() = %+v, want Changed from 0", first)
	}

	second, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if second.Version != 2 {
		t.Errorf("version = %d, want 2 (records + media_slots)", second.Version)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec, err := db.LoadRecord(ctx, "chat")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("LoadRecord on empty db = %+v, want nil", rec)
	}

	cursor := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := db.SaveRecord(ctx, &Record{Namespace: "chat", Payload: []byte(`{"items":[]}`), Cursor: &cursor}); err != nil {
		t.Fatal(err)
	}

	rec, err = db.LoadRecord(ctx, "chat")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("record not saved")
	}
	if string(rec.Payload) != `{"items":[]}` {
		t.Errorf("payload = %s", rec.Payload)
	}
	if rec.Cursor == nil || !rec.Cursor.Equal(cursor) {
		t.Errorf("cursor = %v, want %v", rec.Cursor, cursor)
	}
}

func TestSaveRecordOverwritesAndClearsCursor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	cursor := time.Now().UTC()
	if err := db.SaveRecord(ctx, &Record{Namespace: "photo", Payload: []byte(`1`), Cursor: &cursor}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRecord(ctx, &Record{Namespace: "photo", Payload: []byte(`2`)}); err != nil {
		t.Fatal(err)
	}

	rec, err := db.LoadRecord(ctx, "photo")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != "2" {
		t.Errorf("payload = %s, want 2", rec.Payload)
	}
	if rec.Cursor != nil {
		t.Errorf("cursor = %v, want nil after overwrite", rec.Cursor)
	}
}

func TestSnapshotAdapter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, _, found, err := db.LoadSnapshot(ctx, "friend")
	if err != nil || found {
		t.Fatalf("LoadSnapshot on empty = found %v err %v", found, err)
	}
	if err := db.SaveSnapshot(ctx, "friend", []byte(`{"items":[{"id":"f1"}]}`), nil); err != nil {
		t.Fatal(err)
	}
	payload, cursor, found, err := db.LoadSnapshot(ctx, "friend")
	if err != nil || !found {
		t.Fatalf("LoadSnapshot = found %v err %v", found, err)
	}
	if cursor != nil {
		t.Errorf("cursor = %v, want nil", cursor)
	}
	if string(payload) != `{"items":[{"id":"f1"}]}` {
		t.Errorf("payload = %s", payload)
	}
}

func TestNamespacesAndDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, ns := range []string{"photo", "album", "chat"} {
		if err := db.SaveRecord(ctx, &Record{Namespace: ns, Payload: []byte(`{}`)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.DeleteRecord(ctx, "album"); err != nil {
		t.Fatal(err)
	}

	got, err := db.Namespaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "chat" || got[1] != "photo" {
		t.Errorf("Namespaces() = %v, want [chat photo]", got)
	}
}

func TestMediaSlots(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	slot, err := db.GetMediaSlot(ctx, "photo/u1/2026-03-02")
	if err != nil || slot != nil {
		t.Fatalf("GetMediaSlot on empty = %+v, %v", slot, err)
	}

	if err := db.PutMediaSlot(ctx, &MediaSlot{Slot: "photo/u1/2026-03-02", SourceURL: "https://cdn/a.jpg", LocalPath: "/m/a.jpg"}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutMediaSlot(ctx, &MediaSlot{Slot: "photo/u1/2026-03-02", SourceURL: "https://cdn/b.jpg", LocalPath: "/m/b.jpg"}); err != nil {
		t.Fatal(err)
	}

	slot, err = db.GetMediaSlot(ctx, "photo/u1/2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if slot.SourceURL != "https://cdn/b.jpg" || slot.LocalPath != "/m/b.jpg" {
		t.Errorf("slot = %+v, want replaced by b.jpg", slot)
	}

	if err := db.DeleteMediaSlots(ctx); err != nil {
		t.Fatal(err)
	}
	slot, _ = db.GetMediaSlot(ctx, "photo/u1/2026-03-02")
	if slot != nil {
		t.Errorf("slot survived DeleteMediaSlots: %+v", slot)
	}
}
