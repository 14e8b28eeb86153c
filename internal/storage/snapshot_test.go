package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/pkg/quant"
	"github.com/shopspring/decimal"
)

func TestSnapshot_SaveAndLoad(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())

	accounts := []domain.Account{
		*domain.NewAccount("trader_0000", decimal.RequireFromString("1234.56"), 3*quant.QtyScale+1, true),
	}
	snap := CreateSnapshot("run-1", domain.MarketState{Day: 100, Price: 101.5}, accounts,
		&ManipulatorState{Strategy: "pump_and_dump", Phase: "pump", Equity: "99.5"})
	accounts[0].Cash = decimal.Zero

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
	if loaded.Seq != 100 || loaded.Last.Price != 101.5 || loaded.RunID != "run-1" {
		t.Errorf("snapshot header mismatch: %+v", loaded)
	}
	a := loaded.Accounts[0]
	if !a.Cash.Equal(decimal.RequireFromString("1234.56")) || a.Holdings != 3*quant.QtyScale+1 {
		t.Errorf("account did not round-trip exactly: %+v", a)
	}
	if loaded.Manipulator == nil || loaded.Manipulator.Phase != "pump" {
		t.Errorf("manipulator state lost: %+v", loaded.Manipulator)
	}
}

func TestSnapshot_LoadLatest_MultipleSnapshots(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())
	for _, seq := range []uint64{10, 50, 30} {
		if err := sm.Save(&Snapshot{Seq: seq, TsUnix: 1}); err != nil {
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

func TestSnapshot_LoadLatest_NoDir(t *testing.T) {
	sm := NewSnapshotManager(filepath.Join(t.TempDir(), "missing"))
	snap, err := sm.LoadLatest()
	if err != nil || snap != nil {
		t.Errorf("expected nil, nil; got %v, %v", snap, err)
	}
}

func TestSnapshot_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)
	for seq := uint64(1); seq <= 5; seq++ {
		if err := sm.Save(&Snapshot{Seq: seq, TsUnix: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sm.SaveDump("panic_dump.json", &Snapshot{Reason: "boom"}); err != nil {
		t.Fatal(err)
	}

	if err := sm.Cleanup(2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("expected 2 snapshots and the dump, got %d entries", len(entries))
	}
	latest, _ := sm.LoadLatest()
	if latest.Seq != 5 {
		t.Errorf("latest seq %d after cleanup", latest.Seq)
	}
	dump, err := Load(filepath.Join(dir, "panic_dump.json"))
	if err != nil || dump.Reason != "boom" {
		t.Errorf("dump = %+v, %v", dump, err)
	}
}
