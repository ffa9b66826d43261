package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New()
	require.NotNil(t, s, "expected non-nil scheduler")
	assert.NotNil(t, s.cron, "expected cron instance")
	assert.NotNil(t, s.jobs, "expected jobs map")
}

func TestAddJob(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	err := s.AddJob("sweep", "* * * * *", func(ctx context.Context) {})
	require.NoError(t, err)
	assert.True(t, s.HasJob("sweep"), "expected job to exist")
	assert.Equal(t, 1, s.JobCount())
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New()

	err := s.AddJob("sweep", "invalid cron", func(ctx context.Context) {})
	assert.Error(t, err, "expected error for invalid cron schedule")
}

func TestAddJob_ReplacesExisting(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var counter int32

	// Add first job
	err := s.AddJob("sweep", "* * * * *", func(ctx context.Context) {
		atomic.AddInt32(&counter, 1)
	})
	require.NoError(t, err)

	// Add replacement job with same ID
	err = s.AddJob("sweep", "*/5 * * * *", func(ctx context.Context) {
		atomic.AddInt32(&counter, 10)
	})
	require.NoError(t, err)

	// Should still be only 1 job
	assert.Equal(t, 1, s.JobCount(), "expected 1 job after replacement")
}

func TestRemoveJob(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	s.AddJob("sweep", "* * * * *", func(ctx context.Context) {})
	require.True(t, s.HasJob("sweep"), "job should exist before removal")

	s.RemoveJob("sweep")

	assert.False(t, s.HasJob("sweep"), "job should not exist after removal")
	assert.Equal(t, 0, s.JobCount())
}

func TestRemoveJob_NonExistent(t *testing.T) {
	s := New()

	// Should not panic
	s.RemoveJob("nonexistent")
}

func TestHasJob(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	assert.False(t, s.HasJob("sweep"), "job should not exist initially")

	s.AddJob("sweep", "* * * * *", func(ctx context.Context) {})

	assert.True(t, s.HasJob("sweep"), "job should exist after adding")
	assert.False(t, s.HasJob("sweep-secondary"), "non-added job should not exist")
}

func TestJobCount(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	assert.Equal(t, 0, s.JobCount(), "expected 0 jobs initially")

	s.AddJob("sweep", "* * * * *", func(ctx context.Context) {})
	assert.Equal(t, 1, s.JobCount())

	s.AddJob("sweep-secondary", "* * * * *", func(ctx context.Context) {})
	assert.Equal(t, 2, s.JobCount())

	s.RemoveJob("sweep")
	assert.Equal(t, 1, s.JobCount(), "expected 1 job after removal")
}

func TestListJobs(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	s.AddJob("sweep", "0 3 * * *", func(ctx context.Context) {})
	s.AddJob("sweep-secondary", "0 * * * *", func(ctx context.Context) {})

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)

	job1, exists := jobs["sweep"]
	require.True(t, exists, "sweep job should exist in list")
	assert.Equal(t, "sweep", job1.Name)
	assert.False(t, job1.NextRun.IsZero(), "NextRun should not be zero")

	job2, exists := jobs["sweep-secondary"]
	require.True(t, exists, "secondary job should exist in list")
	assert.Equal(t, "sweep-secondary", job2.Name)
}

func TestListJobs_Empty(t *testing.T) {
	s := New()

	jobs := s.ListJobs()
	assert.Empty(t, jobs)
}

func TestAddJob_UpdatesSchedule(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	require.NoError(t, s.AddJob("sweep", "0 3 * * *", func(ctx context.Context) {}))
	initialID := s.jobs["sweep"]

	require.NoError(t, s.AddJob("sweep", "0 * * * *", func(ctx context.Context) {}))
	updatedID := s.jobs["sweep"]

	assert.NotEqual(t, initialID, updatedID, "replacement should register a new entry")
	assert.Len(t, s.cron.Entries(), 1, "old entry should be removed")

	// Compare against a fixed instant so the assertion does not depend on the wall clock.
	ref := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	next := s.cron.Entry(updatedID).Schedule.Next(ref)
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), next, "entry should follow the hourly schedule")
}

func TestScheduler_ConcurrentAccess(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	done := make(chan bool)

	// Concurrent adds
	for i := 0; i < 10; i++ {
		go func(id int) {
			name := "job" + string(rune('0'+id))
			s.AddJob(name, "* * * * *", func(ctx context.Context) {})
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10, s.JobCount())

	// Concurrent reads
	for i := 0; i < 10; i++ {
		go func() {
			s.ListJobs()
			s.JobCount()
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	// Concurrent removes
	for i := 0; i < 10; i++ {
		go func(id int) {
			name := "job" + string(rune('0'+id))
			s.RemoveJob(name)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 0, s.JobCount(), "expected 0 jobs after removal")
}

func TestScheduler_StartStop(t *testing.T) {
	s := New()

	s.Start()

	ctx := s.Stop()
	select {
	case <-ctx.Done():
		// Expected
	case <-time.After(time.Second):
		t.Error("Stop should complete quickly")
	}
}

func TestScheduler_ValidCronSchedules(t *testing.T) {
	s := New()

	schedules := []string{
		"* * * * *",     // Every minute
		"0 * * * *",     // Every hour
		"0 0 * * *",     // Every day at midnight
		"0 3 * * *",     // Every day at 3 AM
		"*/15 * * * *",  // Every 15 minutes
		"0 0 * * 0",     // Every Sunday
		"0 0 1 * *",     // First day of every month
		"30 4 1,15 * *", // 4:30 AM on 1st and 15th
		"@daily",        // Descriptor
		"@every 6h",     // Interval
	}

	for _, schedule := range schedules {
		t.Run(schedule, func(t *testing.T) {
			err := s.AddJob("test", schedule, func(ctx context.Context) {})
			assert.NoError(t, err, "schedule %q should be valid", schedule)
			s.RemoveJob("test")
		})
	}
}

func TestScheduler_InvalidCronSchedules(t *testing.T) {
	s := New()

	schedules := []string{
		"",
		"invalid",
		"* * *",       // Too few fields
		"* * * * * *", // Too many fields (6-field not enabled)
		"60 * * * *",  // Invalid minute
		"* 24 * * *",  // Invalid hour
		"* * 32 * *",  // Invalid day
		"* * * 13 *",  // Invalid month
		"* * * * 7",   // Invalid day of week (should be 0-6)
	}

	for _, schedule := range schedules {
		t.Run(schedule, func(t *testing.T) {
			err := s.AddJob("test", schedule, func(ctx context.Context) {})
			assert.Error(t, err, "schedule %q should be invalid", schedule)
			s.RemoveJob("test")
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 3 * * *"))
	assert.NoError(t, Validate("@hourly"))
	assert.Error(t, Validate("not a schedule"))
}

func TestStop_CancelsJobContext(t *testing.T) {
	s := New()

	ctxSeen := make(chan context.Context, 1)
	require.NoError(t, s.AddJob("sweep", "@every 1s", func(ctx context.Context) {
		select {
		case ctxSeen <- ctx:
		default:
		}
		<-ctx.Done()
	}))
	s.Start()

	var jobCtx context.Context
	select {
	case jobCtx = <-ctxSeen:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	stopped := s.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(time.Second):
		t.Fatal("Stop should wait for the job to observe cancellation")
	}
	assert.Error(t, jobCtx.Err())
}
