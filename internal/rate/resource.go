/*
 * mlinstall: modlist installer engine
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package rate implements the rate-limited resource: a named, bounded
// concurrency governor that combines a task-slot semaphore with a
// throughput pacer and a job registry. Every long-running operation in
// the engine (download, extraction, hashing, container build) acquires
// a Job from the Resource responsible for its category before doing any
// work.
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Job is a rate-limiter ticket. Current is mutated monotonically by
// Report/ReportNoWait calls; Resource.Finish releases the task slot the
// job was holding.
type Job struct {
	ID          string
	Description string
	Size        int64
	Current     int64
	Started     bool

	mu  sync.Mutex
	sem *semaphore.Weighted // the semaphore instance this job's slot was acquired from
}

// Progress returns the job's current byte position.
func (j *Job) Progress() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Current
}

// Status is a point-in-time snapshot of a Resource.
type Status struct {
	Running    int
	Waiting    int
	TotalBytes int64
}

type reportRequest struct {
	n    int64
	done chan struct{}
}

// Resource is a named Resource<Tag> instance: max-tasks slots gated by a
// counting semaphore, plus a throughput governor serialised through a
// single goroutine consuming a bounded channel, per §4.2 and §9's
// "long-lived background governor" note.
type Resource struct {
	Name string

	mu           sync.Mutex
	maxTasks     int64
	sem          *semaphore.Weighted
	limiter      *rate.Limiter // nil/Inf when unbounded
	running      int
	waiting      int
	totalBytes   int64
	jobs         map[string]*Job
	governorCh   chan reportRequest
	governorStop context.CancelFunc
	governorDone chan struct{}
}

// New constructs a Resource with maxTasks concurrent slots and
// maxThroughputBytesPerSecond pacing (0 or a non-positive value means
// unbounded: report calls then return immediately).
func New(name string, maxTasks int64, maxThroughputBytesPerSecond float64) *Resource {
	if maxTasks <= 0 {
		maxTasks = 1
	}
	r := &Resource{
		Name:       name,
		maxTasks:   maxTasks,
		sem:        semaphore.NewWeighted(maxTasks),
		jobs:       make(map[string]*Job),
		governorCh: make(chan reportRequest, 256),
	}
	r.setLimiter(maxThroughputBytesPerSecond)
	r.startGovernor()
	return r
}

func (r *Resource) setLimiter(bps float64) {
	if bps <= 0 {
		r.limiter = nil
		return
	}
	// Burst of 1 second's worth of throughput: single reports are paced
	// smoothly rather than bursting the full budget on the first call.
	burst := int(bps)
	if burst < 1 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(rate.Limit(bps), burst)
}

func (r *Resource) startGovernor() {
	ctx, cancel := context.WithCancel(context.Background())
	r.governorStop = cancel
	r.governorDone = make(chan struct{})
	ch := r.governorCh

	go func() {
		defer close(r.governorDone)
		for {
			select {
			case <-ctx.Done():
				// Drain in-flight completion signals before exiting so
				// that no caller of Report blocks forever on shutdown.
				for {
					select {
					case req := <-ch:
						close(req.done)
					default:
						return
					}
				}
			case req := <-ch:
				r.mu.Lock()
				limiter := r.limiter
				r.mu.Unlock()
				if limiter != nil {
					reservation := limiter.ReserveN(time.Now(), clampBurst(req.n, limiter))
					if reservation.OK() {
						delay := reservation.Delay()
						if delay > 0 {
							timer := time.NewTimer(delay)
							select {
							case <-timer.C:
							case <-ctx.Done():
								timer.Stop()
							}
						}
					}
				}
				close(req.done)
			}
		}
	}()
}

func clampBurst(n int64, limiter *rate.Limiter) int {
	b := limiter.Burst()
	if n > int64(b) {
		return b
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

// Begin blocks until a task slot is free (or ctx is cancelled) and
// returns a started Job. Cancellation of a Begin call that is still
// waiting leaves all counters unchanged.
func (r *Resource) Begin(ctx context.Context, title string, size int64) (*Job, error) {
	r.mu.Lock()
	r.waiting++
	sem := r.sem
	r.mu.Unlock()

	err := sem.Acquire(ctx, 1)

	r.mu.Lock()
	r.waiting--
	r.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("begin %q: %w", title, err)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Description: title,
		Size:        size,
		Started:     true,
		sem:         sem,
	}

	r.mu.Lock()
	r.running++
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job, nil
}

// Report blocks until n bytes have been paid for at the throughput
// budget. If the resource is unbounded it returns immediately.
// Cancellation of a Report that has already consumed throughput credit
// surrenders the credit: there is no refund.
func (r *Resource) Report(ctx context.Context, job *Job, n int64) error {
	r.mu.Lock()
	unbounded := r.limiter == nil
	r.totalBytes += n
	r.mu.Unlock()

	job.mu.Lock()
	job.Current += n
	job.mu.Unlock()

	if unbounded || n <= 0 {
		return nil
	}

	req := reportRequest{n: n, done: make(chan struct{})}
	select {
	case r.governorCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportNoWait updates counters without blocking; used for
// monitoring-only progress signals that must never be paced.
func (r *Resource) ReportNoWait(job *Job, n int64) {
	r.mu.Lock()
	r.totalBytes += n
	r.mu.Unlock()

	job.mu.Lock()
	job.Current += n
	job.mu.Unlock()
}

// Finish releases the task slot held by job.
func (r *Resource) Finish(job *Job) {
	job.sem.Release(1)

	r.mu.Lock()
	r.running--
	delete(r.jobs, job.ID)
	r.mu.Unlock()
}

// StatusReport returns a snapshot of the resource's counters.
func (r *Resource) StatusReport() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:    r.running,
		Waiting:    r.waiting,
		TotalBytes: r.totalBytes,
	}
}

// Reload replaces the task-slot semaphore and throughput limiter with
// new settings. Outstanding jobs keep the semaphore reference they
// acquired their slot from (held in Job.sem) and continue to release
// against it correctly; only new Begin calls observe the new limits.
func (r *Resource) Reload(maxTasks int64, maxThroughputBytesPerSecond float64) {
	if maxTasks <= 0 {
		maxTasks = 1
	}
	r.mu.Lock()
	r.maxTasks = maxTasks
	r.sem = semaphore.NewWeighted(maxTasks)
	r.setLimiter(maxThroughputBytesPerSecond)
	r.mu.Unlock()
}

// Close stops the background governor goroutine, draining any in-flight
// completion signals so waiting Report calls are released.
func (r *Resource) Close() {
	r.governorStop()
	<-r.governorDone
}
