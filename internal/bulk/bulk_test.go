package bulk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSequentialExecution(t *testing.T) {
	items := []string{"101", "102", "103", "104", "105"}
	executed := []string{}
	var mu sync.Mutex

	op := &Operation{
		Jobs:            1,
		ContinueOnError: false,
	}

	fn := func(_ context.Context, item string) error {
		mu.Lock()
		executed = append(executed, item)
		mu.Unlock()
		return nil
	}

	result := op.Execute(context.Background(), items, fn)

	if result.TotalItems != 5 {
		t.Errorf("Expected 5 total items, got %d", result.TotalItems)
	}
	if result.Succeeded != 5 {
		t.Errorf("Expected 5 successes, got %d", result.Succeeded)
	}
	if result.Failed != 0 {
		t.Errorf("Expected 0 failures, got %d", result.Failed)
	}

	// Check order is preserved
	for i, item := range items {
		if executed[i] != item {
			t.Errorf("Order not preserved: expected %s at index %d, got %s", item, i, executed[i])
		}
	}
}

func TestParallelExecution(t *testing.T) {
	items := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	executedMap := make(map[string]bool)
	var mu sync.Mutex

	op := &Operation{
		Jobs:            4,
		ContinueOnError: false,
	}

	fn := func(_ context.Context, item string) error {
		mu.Lock()
		executedMap[item] = true
		mu.Unlock()
		time.Sleep(10 * time.Millisecond) // Simulate work
		return nil
	}

	result := op.Execute(context.Background(), items, fn)

	if result.Succeeded != 8 {
		t.Errorf("Expected 8 successes, got %d", result.Succeeded)
	}
	if result.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got %d", result.Skipped)
	}
	for _, item := range items {
		if !executedMap[item] {
			t.Errorf("Item %s was not executed", item)
		}
	}
}

func TestContinueOnError_ErrorsInInputOrder(t *testing.T) {
	items := []string{"1", "2", "3", "4", "5", "6"}

	op := &Operation{
		Jobs:            3,
		ContinueOnError: true,
	}

	fn := func(_ context.Context, item string) error {
		if item == "5" || item == "2" {
			// Finish the later item first
			if item == "2" {
				time.Sleep(20 * time.Millisecond)
			}
			return errors.New("simulated error")
		}
		return nil
	}

	result := op.Execute(context.Background(), items, fn)

	if result.Succeeded != 4 {
		t.Errorf("Expected 4 successes, got %d", result.Succeeded)
	}
	if result.Failed != 2 {
		t.Fatalf("Expected 2 failures, got %d", result.Failed)
	}
	if result.Errors[0].Item != "2" || result.Errors[1].Item != "5" {
		t.Errorf("Errors not in input order: %+v", result.Errors)
	}
}

func TestStopOnError(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	executed := []string{}
	var mu sync.Mutex

	op := &Operation{
		Jobs:            1,
		ContinueOnError: false,
	}

	fn := func(_ context.Context, item string) error {
		mu.Lock()
		executed = append(executed, item)
		mu.Unlock()

		if item == "c" {
			return errors.New("simulated error")
		}
		return nil
	}

	result := op.Execute(context.Background(), items, fn)

	if result.Succeeded != 2 {
		t.Errorf("Expected 2 successes, got %d", result.Succeeded)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", result.Failed)
	}
	if result.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", result.Skipped)
	}
	if len(executed) != 3 {
		t.Errorf("Expected execution to stop after 3 items, got %d", len(executed))
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := &Operation{Jobs: 2, ContinueOnError: true}
	result := op.Execute(ctx, []string{"1", "2", "3"}, func(context.Context, string) error {
		t.Error("fn must not run on a cancelled context")
		return nil
	})

	if result.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", result.Skipped)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		result   *Result
		expected int
	}{
		{
			name:     "all succeeded",
			result:   &Result{TotalItems: 10, Succeeded: 10},
			expected: 0,
		},
		{
			name:     "partial success",
			result:   &Result{TotalItems: 10, Succeeded: 7, Failed: 3},
			expected: 5,
		},
		{
			name:     "all failed",
			result:   &Result{TotalItems: 10, Failed: 10},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := tt.result.ExitCode()
			if code != tt.expected {
				t.Errorf("Expected exit code %d, got %d", tt.expected, code)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{
		TotalItems: 4,
		Succeeded:  2,
		Failed:     1,
		Skipped:    1,
		Errors:     []ItemError{{Index: 2, Item: "103", Error: errors.New("status 500")}},
	}
	r.PrintSummary(&buf)

	out := buf.String()
	if !strings.Contains(out, "2 ok, 1 failed, 1 not checked") {
		t.Errorf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "103: status 500") {
		t.Errorf("summary missing error line: %q", out)
	}
}

func TestEmptyItems(t *testing.T) {
	op := &Operation{Jobs: 4}

	result := op.Execute(context.Background(), nil, func(context.Context, string) error {
		return nil
	})

	if result.TotalItems != 0 {
		t.Errorf("Expected 0 total items, got %d", result.TotalItems)
	}
}

func TestAutoCPUDetection(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	op := &Operation{
		Jobs: 0, // Should auto-detect
	}

	result := op.Execute(context.Background(), items, func(context.Context, string) error {
		return nil
	})

	if result.Succeeded != 4 {
		t.Errorf("Expected 4 successes, got %d", result.Succeeded)
	}
}
