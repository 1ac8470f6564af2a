// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/olegiv/radnice/internal/testutil"
)

func TestNew(t *testing.T) {
	logger := testutil.TestLoggerSilent()

	s := New(logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cron == nil {
		t.Error("New() scheduler has nil cron")
	}
	if s.logger != logger {
		t.Error("New() scheduler has wrong logger")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(testutil.TestLoggerSilent())
	if err := s.Add(Job{Name: "noop", Schedule: "@hourly", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start()
	s.Stop()
}

func TestScheduler_Add(t *testing.T) {
	s := New(testutil.TestLoggerSilent())
	run := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid", Job{Name: "rollup", Schedule: "15 * * * *", Run: run}, false},
		{"descriptor", Job{Name: "sweep", Schedule: "@every 30m", Run: run}, false},
		{"duplicate", Job{Name: "rollup", Schedule: "15 * * * *", Run: run}, true},
		{"bad schedule", Job{Name: "bad", Schedule: "every tuesday", Run: run}, true},
		{"seconds field rejected", Job{Name: "secs", Schedule: "0 15 * * * *", Run: run}, true},
		{"no name", Job{Schedule: "@daily", Run: run}, true},
		{"no func", Job{Name: "nofunc", Schedule: "@daily"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.job)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	jobs := s.List()
	if len(jobs) != 2 {
		t.Fatalf("List() has %d jobs, want 2", len(jobs))
	}
	if jobs[0].Name != "rollup" || jobs[1].Name != "sweep" {
		t.Errorf("List() order = %s, %s", jobs[0].Name, jobs[1].Name)
	}
}

func TestScheduler_TriggerNow(t *testing.T) {
	s := New(testutil.TestLoggerSilent())

	calls := 0
	boom := errors.New("boom")
	var sawDeadline bool
	err := s.Add(Job{
		Name:     "flaky",
		Schedule: "@daily",
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			calls++
			_, sawDeadline = ctx.Deadline()
			if calls == 1 {
				return boom
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.TriggerNow(context.Background(), "flaky"); !errors.Is(err, boom) {
		t.Errorf("first run err = %v, want boom", err)
	}
	if !sawDeadline {
		t.Error("job context has no deadline")
	}
	if info := s.List()[0]; info.LastError != "boom" || info.LastRun.IsZero() {
		t.Errorf("after failure = %+v", info)
	}

	if err := s.TriggerNow(context.Background(), "flaky"); err != nil {
		t.Errorf("second run err = %v", err)
	}
	if info := s.List()[0]; info.LastError != "" {
		t.Errorf("LastError = %q after success", info.LastError)
	}

	if err := s.TriggerNow(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("missing job err = %v, want ErrJobNotFound", err)
	}
}
