package worker

import (
	"sync/atomic"
	"testing"
	"time"

	fv "github.com/gofhir/fschema"
)

// mockValidator implements the Validator interface for testing.
type mockValidator struct {
	callCount atomic.Int32
	delay     time.Duration
}

func (m *mockValidator) Validate(resource []byte, seedURLs []string) *fv.Result {
	m.callCount.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	res := fv.NewResult()
	return res
}

func TestPool_NewPool(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 2)
	defer pool.Close()

	if pool == nil {
		t.Fatal("expected non-nil pool")
	}
	if pool.workers != 2 {
		t.Errorf("workers = %d; want 2", pool.workers)
	}
}

func TestPool_DefaultWorkers(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 0)
	defer pool.Close()

	if pool.workers <= 0 {
		t.Errorf("workers = %d; want > 0", pool.workers)
	}
}

func TestPool_SubmitAndReceive(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 2)
	defer pool.Close()

	job := Job{
		ID:       "test-1",
		Resource: []byte(`{"resourceType":"Patient"}`),
	}

	submitted := pool.Submit(job)
	if !submitted {
		t.Error("expected job to be submitted")
	}

	// Wait for result
	select {
	case result := <-pool.Results():
		if result.ID != "test-1" {
			t.Errorf("ID = %q; want %q", result.ID, "test-1")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestPool_SubmitToClosedPool(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 2)
	pool.Close()

	submitted := pool.Submit(Job{ID: "after-close"})
	if submitted {
		t.Error("expected submit to fail after close")
	}
}

func TestPool_DoubleClose(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 2)

	pool.Close()
	pool.Close() // Should not panic
}

func TestPool_NilValidator(t *testing.T) {
	pool := NewPool(nil, 2)
	defer pool.Close()

	pool.Submit(Job{ID: "nil-validator"})

	select {
	case result := <-pool.Results():
		if result.Error != ErrNoValidator {
			t.Errorf("Error = %v; want ErrNoValidator", result.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestPool_Stats(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 2)
	defer pool.Close()

	pool.Submit(Job{ID: "stats-test"})

	// Drain the result
	select {
	case <-pool.Results():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}

	stats := pool.Stats()
	if stats.Workers != 2 {
		t.Errorf("Workers = %d; want 2", stats.Workers)
	}
	if stats.JobsSubmitted == 0 {
		t.Error("expected JobsSubmitted > 0")
	}
}

func TestPool_CloseAndWait(t *testing.T) {
	validator := &mockValidator{}
	pool := NewPool(validator, 4)

	for i := 0; i < 10; i++ {
		pool.Submit(Job{ID: "batch", Index: i, Resource: []byte(`{"resourceType":"Patient"}`)})
	}

	batch := pool.CloseAndWait()
	if batch.TotalJobs != 10 {
		t.Errorf("TotalJobs = %d; want 10", batch.TotalJobs)
	}
	if batch.CompletedJobs != 10 {
		t.Errorf("CompletedJobs = %d; want 10", batch.CompletedJobs)
	}
	if int(validator.callCount.Load()) != 10 {
		t.Errorf("callCount = %d; want 10", validator.callCount.Load())
	}

	seen := make([]bool, 10)
	for _, r := range batch.Results {
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("missing result for index %d", i)
		}
	}
}

func TestBatchResult_HasErrors(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		br := &BatchResult{
			Results: []*JobResult{
				{ID: "1", Result: nil, Error: nil},
			},
		}
		if br.HasErrors() {
			t.Error("expected HasErrors() = false for nil result")
		}
	})

	t.Run("with error", func(t *testing.T) {
		br := &BatchResult{
			Results: []*JobResult{
				{ID: "1", Error: ErrNoValidator},
			},
		}
		if !br.HasErrors() {
			t.Error("expected HasErrors() = true when error present")
		}
	})
}

func TestBatchResult_ErrorCount(t *testing.T) {
	br := &BatchResult{
		Results: []*JobResult{
			{ID: "1", Result: nil},
			{ID: "2", Result: nil},
		},
	}
	if br.ErrorCount() != 0 {
		t.Errorf("ErrorCount() = %d; want 0", br.ErrorCount())
	}
}
