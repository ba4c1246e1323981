package risk

import (
	"path/filepath"
	"testing"
)

func TestFileStore_SaveThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	fs := NewFileStore(path)

	if err := fs.SaveJSON([]byte(`{"day_key":"2026-07-31"}`)); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	data, err := fs.ReadLatestJSON()
	if err != nil {
		t.Fatalf("ReadLatestJSON: %v", err)
	}
	if string(data) != `{"day_key":"2026-07-31"}` {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestFileStore_ReadBeforeSaveReturnsNil(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	data, err := fs.ReadLatestJSON()
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data, got %s", data)
	}
}

func TestFileStore_SecondSaveOverwritesFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	fs := NewFileStore(path)

	if err := fs.SaveJSON([]byte(`{"cards_today":1}`)); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	if err := fs.SaveJSON([]byte(`{"cards_today":2}`)); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	data, err := fs.ReadLatestJSON()
	if err != nil {
		t.Fatalf("ReadLatestJSON: %v", err)
	}
	if string(data) != `{"cards_today":2}` {
		t.Fatalf("unexpected data: %s", data)
	}
}
