package snapshot

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"corpathways/internal/evidence"
)

func sampleReport(overall int) *evidence.CompanyEvidenceReport {
	return &evidence.CompanyEvidenceReport{
		CompanyID:           "co_1",
		GeneratedAt:         time.Now().UTC(),
		TotalQuestions:      24,
		SufficientQuestions: overall / 5,
		OverallPercentage:   overall,
		Elements:            []evidence.ElementEvidenceSummary{},
		CriticalGaps:        []evidence.CriticalGap{},
		Questions:           map[string]evidence.QuestionEvidence{},
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.CommitReport("co_1", sampleReport(40), "Pat Owner")
	if err != nil {
		t.Fatalf("CommitReport() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "co_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, err := svc.CommitReport("co_1", sampleReport(65), "Pat Owner")
	if err != nil {
		t.Fatalf("second CommitReport() error = %v", err)
	}

	history, err := svc.History("co_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Fatalf("newest first: got %s, want %s", history[0].Hash, second.Hash)
	}

	stored, err := svc.GetByHash("co_1", first.Hash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if stored.OverallPercentage != 40 {
		t.Fatalf("snapshot overall = %d, want the value at commit time", stored.OverallPercentage)
	}
}

func TestHistoryEmptyForUnknownCompany(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("co_never", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %v, want empty", history)
	}
}

func TestCompanySnapshotsIsolated(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.CommitReport("co_a", sampleReport(10), "A"); err != nil {
		t.Fatalf("CommitReport co_a: %v", err)
	}
	if _, err := svc.CommitReport("co_b", sampleReport(90), "B"); err != nil {
		t.Fatalf("CommitReport co_b: %v", err)
	}

	historyA, err := svc.History("co_a", 10)
	if err != nil {
		t.Fatalf("History co_a: %v", err)
	}
	if len(historyA) != 1 {
		t.Fatalf("co_a history = %d, want 1", len(historyA))
	}
}

func TestConcurrentCommitsSameCompany(t *testing.T) {
	svc := New(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := svc.CommitReport("co_1", sampleReport(n*10), "Worker"); err != nil {
				t.Errorf("CommitReport: %v", err)
			}
		}(i + 1)
	}
	wg.Wait()

	history, err := svc.History("co_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history entries = %d, want 4", len(history))
	}
}
