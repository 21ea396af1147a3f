package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"veridian-hq/attune/pkg/engine"
	"veridian-hq/attune/pkg/policy"
)

func testChange(service, environment string, changedAt time.Time) Change {
	return Change{
		ID:                    uuid.NewString(),
		Service:               service,
		Environment:           environment,
		MatchedPolicyID:       "elevate-on-errors",
		LogLevel:              "ERROR",
		TraceSampleRate:       1.0,
		MetricIntervalSeconds: 15,
		Reason:                "policy elevate-on-errors matched",
		ChangedAt:             changedAt,
	}
}

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "audit.db")
	recorder, err := NewSQLiteRecorder(cfg, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder failed: %v", err)
	}
	t.Cleanup(func() { recorder.Close() })
	return recorder
}

func TestSQLiteRecorder_RecordAndRecent(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	first := testChange("checkout", "prod", now)
	second := testChange("checkout", "prod", now.Add(time.Minute))
	second.MatchedPolicyID = "default"
	second.PreviousPolicyID = "elevate-on-errors"
	other := testChange("billing", "staging", now.Add(2*time.Minute))

	for _, c := range []Change{first, second, other} {
		if err := recorder.Record(ctx, c); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	// Unfiltered, newest first.
	changes, err := recorder.Recent(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Recent returned %d changes, want 3", len(changes))
	}
	if changes[0].Service != "billing" {
		t.Errorf("newest change service = %q, want billing", changes[0].Service)
	}

	// Filtered by key.
	changes, err = recorder.Recent(ctx, "checkout", "prod", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("filtered Recent returned %d changes, want 2", len(changes))
	}
	if changes[0].MatchedPolicyID != "default" || changes[0].PreviousPolicyID != "elevate-on-errors" {
		t.Errorf("newest checkout change = %+v", changes[0])
	}
	if !changes[0].ChangedAt.Equal(now.Add(time.Minute)) {
		t.Errorf("ChangedAt round-trip = %v, want %v", changes[0].ChangedAt, now.Add(time.Minute))
	}

	// Limit applies.
	changes, err = recorder.Recent(ctx, "", "", 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("limited Recent returned %d changes, want 1", len(changes))
	}
}

func TestSQLiteRecorder_PruneBefore(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	old := testChange("checkout", "prod", now.Add(-40*24*time.Hour))
	recent := testChange("checkout", "prod", now)
	for _, c := range []Change{old, recent} {
		if err := recorder.Record(ctx, c); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	removed, err := recorder.PruneBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneBefore removed %d rows, want 1", removed)
	}

	changes, err := recorder.Recent(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(changes) != 1 || !changes[0].ChangedAt.Equal(now) {
		t.Errorf("surviving changes = %+v, want only the recent one", changes)
	}
}

func TestListenerFor(t *testing.T) {
	recorder := newTestRecorder(t)
	listener := ListenerFor(recorder, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	prev := &engine.Decision{
		Service:         "checkout",
		Environment:     "prod",
		MatchedPolicyID: "default",
		Action:          policy.Action{LogLevel: policy.LevelInfo, TraceSampleRate: 0.1, MetricIntervalSeconds: 60},
	}
	next := engine.Decision{
		Service:         "checkout",
		Environment:     "prod",
		MatchedPolicyID: "elevate-on-errors",
		Action:          policy.Action{LogLevel: policy.LevelError, TraceSampleRate: 1.0, MetricIntervalSeconds: 15},
		DecidedAt:       now,
		Reason:          "policy elevate-on-errors matched",
	}

	listener(ctx, nil, *prev)
	listener(ctx, prev, next)

	changes, err := recorder.Recent(ctx, "checkout", "prod", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("Recent returned %d changes, want 2", len(changes))
	}
	if changes[0].PreviousPolicyID != "default" || changes[0].MatchedPolicyID != "elevate-on-errors" {
		t.Errorf("newest change = %+v", changes[0])
	}
	if changes[0].LogLevel != "ERROR" || changes[0].TraceSampleRate != 1.0 {
		t.Errorf("newest change action fields = %+v", changes[0])
	}
	if changes[1].PreviousPolicyID != "" {
		t.Errorf("first decision change has previous policy %q, want empty", changes[1].PreviousPolicyID)
	}
	if changes[0].ID == changes[1].ID || changes[0].ID == "" {
		t.Errorf("change ids not unique: %q vs %q", changes[0].ID, changes[1].ID)
	}
}

func TestNopRecorder(t *testing.T) {
	var recorder Recorder = NopRecorder{}
	if err := recorder.Record(context.Background(), testChange("a", "b", time.Now())); err != nil {
		t.Errorf("NopRecorder.Record returned %v", err)
	}
	changes, err := recorder.Recent(context.Background(), "", "", 10)
	if err != nil || changes != nil {
		t.Errorf("NopRecorder.Recent = %v, %v", changes, err)
	}
}
