package history

import (
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(id string, status domain.RunStatus) domain.RunResult {
	return domain.RunResult{
		Issue:      domain.Issue{Identifier: id, Title: "A task"},
		Status:     status,
		Iterations: 4,
		Duration:   90 * time.Second,
	}
}

func TestSaveAndReadBack(t *testing.T) {
	store := newStore(t)

	started := time.Now().Add(-2 * time.Minute)
	entry := NewEntry(sampleResult("PROJ-42", domain.RunCompleted), started, time.Now())
	log := "=== Iteration 1 ===\nworking\n=== Iteration 2 ===\n<promise>DONE</promise>\n"

	if err := store.SaveRun(entry, log); err != nil {
		t.Fatal(err)
	}

	got, err := store.LatestRun("PROJ-42")
	if err != nil {
		t.Fatal(err)
	}
	if got.Identifier != "PROJ-42" {
		t.Errorf("Identifier = %q", got.Identifier)
	}
	if got.Status != domain.RunCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", got.Iterations)
	}
	if got.TotalMs != 90_000 {
		t.Errorf("TotalMs = %d, want 90000", got.TotalMs)
	}

	gotLog, err := store.OutputLog("PROJ-42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotLog, "=== Iteration 2 ===") {
		t.Errorf("output log missing iteration marker: %q", gotLog)
	}
}

func TestLatestRunOverwritten(t *testing.T) {
	store := newStore(t)

	first := NewEntry(sampleResult("PROJ-1", domain.RunError), time.Now(), time.Now())
	if err := store.SaveRun(first, "first"); err != nil {
		t.Fatal(err)
	}
	second := NewEntry(sampleResult("PROJ-1", domain.RunCompleted), time.Now(), time.Now())
	if err := store.SaveRun(second, "second"); err != nil {
		t.Fatal(err)
	}

	// Per-issue directory holds the latest run only.
	got, err := store.LatestRun("PROJ-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunCompleted {
		t.Errorf("latest Status = %q, want completed", got.Status)
	}

	// The index keeps both.
	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("indexed run count = %d, want 2", len(runs))
	}
}

func TestListRunsLimit(t *testing.T) {
	store := newStore(t)

	for i := 0; i < 5; i++ {
		entry := NewEntry(sampleResult("PROJ-9", domain.RunMaxIterations), time.Now(), time.Now().Add(time.Duration(i)*time.Second))
		if err := store.SaveRun(entry, ""); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Errorf("run count = %d, want 3", len(runs))
	}
}

func TestSanitizedIdentifier(t *testing.T) {
	store := newStore(t)

	entry := NewEntry(sampleResult("team/PROJ-3", domain.RunCompleted), time.Now(), time.Now())
	if err := store.SaveRun(entry, "log"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LatestRun("team/PROJ-3"); err != nil {
		t.Errorf("LatestRun with slashed identifier: %v", err)
	}
}
