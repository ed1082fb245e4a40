package enrollq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"keyprint/internal/gallery"
	"keyprint/internal/keystroke"
	"keyprint/internal/storage"
)

type mockUpdater struct {
	mu      sync.Mutex
	applied []gallery.UpdatePayload
	applyFn func(profileID string, confidence float64, events []keystroke.KeyEvent) error
}

func (m *mockUpdater) ApplyUpdate(profileID string, confidence float64, events []keystroke.KeyEvent) error {
	if m.applyFn != nil {
		return m.applyFn(profileID, confidence, events)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, gallery.UpdatePayload{ProfileID: profileID, Confidence: confidence, Events: events})
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueUpdateJob(t *testing.T, store *storage.Store, jobID, profileID string) {
	t.Helper()
	payload, _ := json.Marshal(gallery.UpdatePayload{
		ProfileID:  profileID,
		Confidence: 0.91,
		Events:     []keystroke.KeyEvent{{Key: "a", Timestamp: 0}, {Key: "b", Timestamp: 100, TimeSinceLast: 100}},
	})
	job := storage.Job{
		ID:          jobID,
		Type:        gallery.JobTypeProfileUpdate,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueueUpdateJob(t, store, "job-1", "prof-1")

	updater := &mockUpdater{}
	w := NewWorker(store, updater, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	updater.mu.Lock()
	defer updater.mu.Unlock()
	if len(updater.applied) != 1 {
		t.Fatalf("applied %d updates, want 1", len(updater.applied))
	}
	got := updater.applied[0]
	if got.ProfileID != "prof-1" {
		t.Errorf("ProfileID = %q, want %q", got.ProfileID, "prof-1")
	}
	if got.Confidence != 0.91 {
		t.Errorf("Confidence = %v, want 0.91", got.Confidence)
	}
	if len(got.Events) != 2 {
		t.Errorf("events = %d, want 2", len(got.Events))
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-1'`).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockUpdater{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true on an empty queue")
	}
}

func TestWorker_BadPayloadFailsJob(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(storage.Job{ID: "job-bad", Type: gallery.JobTypeProfileUpdate, PayloadJSON: "{not json", MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, &mockUpdater{}, 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-bad'`).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueUpdateJob(t, store, "job-r", "prof-r")

	calls := 0
	updater := &mockUpdater{
		applyFn: func(_ string, _ float64, _ []keystroke.KeyEvent) error {
			calls++
			if calls <= 2 {
				return fmt.Errorf("transient error %d", calls)
			}
			return nil
		},
	}
	w := NewWorker(store, updater, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, "job-r")
		}
	}

	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'job-r'`).Scan(&status, &attempts); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	enqueueUpdateJob(t, store, "job-m", "prof-m")

	updater := &mockUpdater{
		applyFn: func(_ string, _ float64, _ []keystroke.KeyEvent) error {
			return fmt.Errorf("permanent error")
		},
	}
	w := NewWorker(store, updater, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, "job-m")
		}
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-m'`).Scan(&status); err != nil {
		t.Fatalf("query final status: %v", err)
	}
	if status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockUpdater{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
