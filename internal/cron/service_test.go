package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestCronService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	svc := newTestCronService(t, lock, ok, failing)

	err := svc.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if len(multierr.Errors(err)) != 1 {
		t.Fatalf("expected one job error, got %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "sweep"}
	svc := newTestCronService(t, &fakeLock{held: true}, job)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected skip without error, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run while another worker holds the lock")
	}
}

func TestRunOnceSelectsNamedJobs(t *testing.T) {
	sweep := &testJob{name: "sweep"}
	retention := &testJob{name: "retention"}
	svc := newTestCronService(t, &fakeLock{}, sweep, retention)

	if err := svc.RunOnce(context.Background(), "retention"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sweep.runs != 0 || retention.runs != 1 {
		t.Fatalf("expected only retention to run, got sweep=%d retention=%d", sweep.runs, retention.runs)
	}
	if err := svc.RunOnce(context.Background(), "missing"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}
