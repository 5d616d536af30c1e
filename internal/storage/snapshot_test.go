package storage

import (
	"os"
	"testing"

	"convert_invoices/internal/domain"

	"github.com/shopspring/decimal"
)

func TestSnapshot_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	out := decimal.RequireFromString("49.75")
	sessions := map[string]domain.ConversionState{
		"s1": {
			Seq:             7,
			FromCurrency:    "tBTC.vETH",
			ToCurrency:      "VRSC",
			Amount:          "1",
			EstimatedAmount: &out,
		},
	}
	snap := CreateSnapshot(100, "panic", sessions)

	// Mutating the source after capture must not reach the snapshot.
	out = decimal.Zero

	if err := sm.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected snapshot, got nil")
	}

	if loaded.Seq != 100 || loaded.Reason != "panic" {
		t.Errorf("unexpected header: seq=%d reason=%q", loaded.Seq, loaded.Reason)
	}
	got := loaded.Sessions["s1"]
	if got.FromCurrency != "tBTC.vETH" || got.EstimatedAmount == nil {
		t.Fatalf("session not restored: %+v", got)
	}
	if !got.EstimatedAmount.Equal(decimal.RequireFromString("49.75")) {
		t.Errorf("estimate mismatch: %s", got.EstimatedAmount)
	}
}

func TestSnapshot_LoadLatest_MultipleSnapshots(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())

	for _, seq := range []uint64{10, 50, 30} {
		snap := &Snapshot{Seq: seq, TsUnix: int64(seq), Sessions: map[string]domain.ConversionState{}}
		if err := sm.Save(snap); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded.Seq != 50 {
		t.Errorf("Expected latest seq 50, got %d", loaded.Seq)
	}
}

func TestSnapshot_LoadLatest_NoSnapshots(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir() + "/missing")

	loaded, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("Expected nil for empty dir, got %v", loaded)
	}
}

func TestSnapshot_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	for seq := uint64(1); seq <= 5; seq++ {
		snap := &Snapshot{Seq: seq, TsUnix: int64(seq)}
		if err := sm.Save(snap); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := sm.Cleanup(2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("Expected 2 snapshots after cleanup, got %d", len(entries))
	}

	loaded, _ := sm.LoadLatest()
	if loaded.Seq != 5 {
		t.Errorf("Expected seq 5 to remain, got %d", loaded.Seq)
	}
}
