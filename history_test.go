// ghosttype/history_test.go
package ghosttype

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing history store: %v", err)
		}
	})
	return store
}

func TestHistoryStoreCounters(t *testing.T) {
	store := openTestHistory(t)

	store.RecordShown(ModeCompletion)
	store.RecordShown(ModeCompletion)
	store.RecordShown(ModeFix)
	store.RecordDismissed(ModeCompletion)
	store.RecordAccepted(HistoryRecord{
		Mode:     ModeCompletion,
		Text:     "return a + b",
		URI:      "file:///t.py",
		Accepted: time.Now(),
	})

	stats := store.Stats()
	comp := stats[ModeCompletion]
	if comp.Shown != 2 || comp.Accepted != 1 || comp.Dismissed != 1 {
		t.Errorf("completion stats = %+v", comp)
	}
	fix := stats[ModeFix]
	if fix.Shown != 1 || fix.Accepted != 0 || fix.Dismissed != 0 {
		t.Errorf("fix stats = %+v", fix)
	}
}

func TestHistoryStoreRecentAccepted(t *testing.T) {
	store := openTestHistory(t)

	for i := 0; i < 5; i++ {
		store.RecordAccepted(HistoryRecord{
			Mode:     ModeCompletion,
			Text:     fmt.Sprintf("snippet-%d", i),
			URI:      "file:///t.py",
			Accepted: time.Now(),
		})
	}

	recent := store.RecentAccepted(3)
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	// Newest first.
	if recent[0].Text != "snippet-4" || recent[2].Text != "snippet-2" {
		t.Errorf("recent order: %q, %q, %q", recent[0].Text, recent[1].Text, recent[2].Text)
	}
}

func TestHistoryStoreRecentLimitTrim(t *testing.T) {
	store := openTestHistory(t)

	for i := 0; i < recentHistoryLimit+10; i++ {
		store.RecordAccepted(HistoryRecord{
			Mode:     ModeCompletion,
			Text:     fmt.Sprintf("snippet-%d", i),
			Accepted: time.Now(),
		})
	}

	all := store.RecentAccepted(recentHistoryLimit * 2)
	if len(all) != recentHistoryLimit {
		t.Errorf("stored records = %d, want trimmed to %d", len(all), recentHistoryLimit)
	}
	if all[0].Text != fmt.Sprintf("snippet-%d", recentHistoryLimit+9) {
		t.Errorf("newest record = %q", all[0].Text)
	}
}

func TestHistoryStoreNilSafe(t *testing.T) {
	var store *HistoryStore
	store.RecordShown(ModeCompletion)
	store.RecordDismissed(ModeCompletion)
	store.RecordAccepted(HistoryRecord{Mode: ModeCompletion})
	if stats := store.Stats(); len(stats) != 0 {
		t.Errorf("nil store Stats() = %v, want empty", stats)
	}
	if recent := store.RecentAccepted(5); recent != nil {
		t.Errorf("nil store RecentAccepted() = %v, want nil", recent)
	}
	if err := store.Close(); err != nil {
		t.Errorf("nil store Close() = %v", err)
	}
}
