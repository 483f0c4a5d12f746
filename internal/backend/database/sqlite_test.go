package database

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) DatabaseService {
	t.Helper()

	ds, err := NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestNewDatabase_UnsupportedType(t *testing.T) {
	if _, err := NewDatabase("postgres", ""); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestSQLite_DoesDatabaseExist(t *testing.T) {
	ds := newTestDB(t)
	if !ds.DoesDatabaseExist() {
		t.Fatalf("expected DoesDatabaseExist to return true")
	}
}

func TestSQLite_SaveAndGetUpload(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	saved, err := ds.SaveUpload(ctx, "B1", "RCM", []byte{0x01, 0x02}, []byte{0x10})
	if err != nil {
		t.Fatalf("SaveUpload error: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := ds.GetUpload(ctx, "B1", "RCM")
	if err != nil {
		t.Fatalf("GetUpload error: %v", err)
	}
	if got == nil {
		t.Fatal("expected upload, got nil")
	}
	if got.ID != saved.ID || got.BiopsyID != "B1" || got.Modality != "RCM" {
		t.Errorf("unexpected upload %+v", got)
	}
	if !bytes.Equal(got.OriginalImage, []byte{0x01, 0x02}) || !bytes.Equal(got.ProcessedImage, []byte{0x10}) {
		t.Errorf("image data mismatch: original=%v processed=%v", got.OriginalImage, got.ProcessedImage)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, saved.CreatedAt)
	}
}

func TestSQLite_GetUpload_Missing(t *testing.T) {
	ds := newTestDB(t)

	got, err := ds.GetUpload(context.Background(), "B1", "confocal")
	if err != nil {
		t.Fatalf("GetUpload error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing upload, got %+v", got)
	}
}

func TestSQLite_SaveUpload_ReplacesPerBiopsyAndModality(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	first, err := ds.SaveUpload(ctx, "B1", "RCM", []byte{0x01}, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ds.SaveUpload(ctx, "B1", "RCM", []byte{0x02}, []byte{0x02})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("expected a fresh ID for the replacement")
	}

	uploads, err := ds.ListUploads(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload after replacement, got %d", len(uploads))
	}
	got, _ := ds.GetUpload(ctx, "B1", "RCM")
	if got.ID != second.ID || !bytes.Equal(got.ProcessedImage, []byte{0x02}) {
		t.Errorf("expected second upload to win, got %+v", got)
	}
}

func TestSQLite_ListUploads(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	for _, m := range []string{"RCM", "MPM-FLIM", "confocal"} {
		if _, err := ds.SaveUpload(ctx, "B1", m, []byte{0x01}, []byte{0x02}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ds.SaveUpload(ctx, "B2", "RCM", []byte{0x01}, []byte{0x02}); err != nil {
		t.Fatal(err)
	}

	uploads, err := ds.ListUploads(ctx, "B1")
	if err != nil {
		t.Fatalf("ListUploads error: %v", err)
	}
	want := []string{"MPM-FLIM", "RCM", "confocal"}
	if len(uploads) != len(want) {
		t.Fatalf("expected %d uploads, got %d", len(want), len(uploads))
	}
	for i, u := range uploads {
		if u.Modality != want[i] {
			t.Errorf("uploads[%d].Modality = %s, want %s", i, u.Modality, want[i])
		}
		if u.OriginalImage != nil || u.ProcessedImage != nil {
			t.Errorf("uploads[%d] should not carry image data", i)
		}
	}

	none, err := ds.ListUploads(ctx, "B9")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestSQLite_DeleteUploadsForBiopsy(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	_, _ = ds.SaveUpload(ctx, "B1", "RCM", []byte{0x01}, []byte{0x01})
	_, _ = ds.SaveUpload(ctx, "B1", "confocal", []byte{0x01}, []byte{0x01})
	_, _ = ds.SaveUpload(ctx, "B2", "RCM", []byte{0x01}, []byte{0x01})

	n, err := ds.DeleteUploadsForBiopsy(ctx, "B1")
	if err != nil {
		t.Fatalf("DeleteUploadsForBiopsy error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted rows, got %d", n)
	}
	if got, _ := ds.GetUpload(ctx, "B1", "RCM"); got != nil {
		t.Error("expected B1 uploads to be gone")
	}
	if got, _ := ds.GetUpload(ctx, "B2", "RCM"); got == nil {
		t.Error("expected B2 upload to remain")
	}

	n, err = ds.DeleteUploadsForBiopsy(ctx, "B1")
	if err != nil || n != 0 {
		t.Errorf("second delete: n=%d err=%v", n, err)
	}
}

func TestSQLite_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")
	ctx := context.Background()

	ds, err := NewDatabase("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds.SaveUpload(ctx, "B3", "confocal", []byte{0x01}, []byte{0x02}); err != nil {
		t.Fatal(err)
	}
	_ = ds.Close()

	reopened, err := NewDatabase("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetUpload(ctx, "B3", "confocal")
	if err != nil || got == nil {
		t.Fatalf("expected persisted upload, got %v err=%v", got, err)
	}
}
