package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/salestag/stag/internal/db"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "stag.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
	})
	return New(conn)
}

func TestInsertAndRecent(t *testing.T) {
	st := openStore(t)

	id, err := st.Insert(Transfer{
		Filename:      "rec_0001.raw",
		DeclaredSize:  4096,
		ReceivedSize:  4096,
		ElapsedMs:     1200,
		BytesPerSec:   3413.3,
		Outcome:       OutcomeComplete,
		Verdict:       VerdictValid,
		ArchiveSHA256: "ab12",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("want generated transfer id")
	}

	if _, err := st.Insert(Transfer{
		Filename:     "rec_0002.raw",
		DeclaredSize: 100,
		ReceivedSize: 52,
		Outcome:      OutcomeIncomplete,
	}); err != nil {
		t.Fatal(err)
	}

	transfers, err := st.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(transfers) != 2 {
		t.Fatalf("want 2 transfers, got %d", len(transfers))
	}
	// Newest first
	if transfers[0].Filename != "rec_0002.raw" {
		t.Errorf("order: got %s first", transfers[0].Filename)
	}
	if transfers[1].Verdict != VerdictValid {
		t.Errorf("verdict: got %s", transfers[1].Verdict)
	}
	if transfers[0].Verdict != VerdictUnanalyzed {
		t.Errorf("default verdict: got %s", transfers[0].Verdict)
	}
}

func TestMarkUploaded(t *testing.T) {
	st := openStore(t)
	id, err := st.Insert(Transfer{Filename: "a.raw", Outcome: OutcomeComplete})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.MarkUploaded(id); err != nil {
		t.Fatal(err)
	}
	transfers, err := st.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if transfers[0].UploadedAt == 0 {
		t.Error("UploadedAt not set")
	}
}

func TestCounts(t *testing.T) {
	st := openStore(t)
	fixtures := []Transfer{
		{Filename: "a", Outcome: OutcomeComplete, Verdict: VerdictValid},
		{Filename: "b", Outcome: OutcomeComplete, Verdict: VerdictCorrupted},
		{Filename: "c", Outcome: OutcomeIncomplete},
	}
	for _, f := range fixtures {
		if _, err := st.Insert(f); err != nil {
			t.Fatal(err)
		}
	}

	total, valid, corrupted, incomplete, err := st.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || valid != 1 || corrupted != 1 || incomplete != 1 {
		t.Errorf("counts: total=%d valid=%d corrupted=%d incomplete=%d", total, valid, corrupted, incomplete)
	}
}

func TestArchivedBeforeAndClear(t *testing.T) {
	st := openStore(t)
	old := float64(time.Now().Add(-48*time.Hour).UnixNano()) / 1e9
	if _, err := st.Insert(Transfer{
		Filename: "old.raw", Outcome: OutcomeComplete,
		ArchiveSHA256: "deadbeef", CompletedAt: old,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Insert(Transfer{
		Filename: "new.raw", Outcome: OutcomeComplete, ArchiveSHA256: "cafe",
	}); err != nil {
		t.Fatal(err)
	}

	cutoff := float64(time.Now().Add(-24*time.Hour).UnixNano()) / 1e9
	hashes, err := st.ArchivedBefore(cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes[0] != "deadbeef" {
		t.Fatalf("want [deadbeef], got %v", hashes)
	}

	if err := st.ClearArchive("deadbeef"); err != nil {
		t.Fatal(err)
	}
	hashes, err = st.ArchivedBefore(cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 0 {
		t.Errorf("want cleared, got %v", hashes)
	}
}
