// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package worker models the worker × thread topology of a start command.
//
// A Pool owns a fixed number of worker units, each with a fixed number of
// thread slots. A request holds one slot for its whole lifetime, so the
// pool never runs more than workers*threads requests at once. When a
// request crashes its worker (a recovered panic), the unit is restarted:
// its generation is bumped and the restart is reported, the same way an
// application server master replaces a dead worker process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("worker pool closed")

// Stats is a snapshot of one worker unit.
type Stats struct {
	ID         int `json:"id"`
	Generation int `json:"generation"`
	InFlight   int `json:"in_flight"`
	Served     int `json:"served"`
	Restarts   int `json:"restarts"`
}

type unit struct {
	id         int
	generation int
	inFlight   int
	served     int
	restarts   int
}

// Pool admits work onto worker units.
type Pool struct {
	threads int
	sem     *semaphore.Weighted

	mu     sync.Mutex
	units  []*unit
	next   int
	closed bool

	// OnRestart is called (outside the lock) after a unit is restarted.
	OnRestart func(id, generation int, cause any)
}

// New creates a pool of workers units with threads slots each.
func New(workers, threads int) (*Pool, error) {
	if workers < 1 || threads < 1 {
		return nil, fmt.Errorf("worker pool needs at least one worker and thread, got %dx%d", workers, threads)
	}
	p := &Pool{
		threads: threads,
		sem:     semaphore.NewWeighted(int64(workers * threads)),
		units:   make([]*unit, workers),
	}
	for i := range p.units {
		p.units[i] = &unit{id: i + 1, generation: 1}
	}
	return p, nil
}

// Capacity is the number of requests the pool runs concurrently.
func (p *Pool) Capacity() int { return len(p.units) * p.threads }

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, ErrClosed
	}
	u := p.pickLocked()
	u.inFlight++
	return &Lease{pool: p, unit: u, generation: u.generation}, nil
}

// pickLocked returns the least busy unit, starting the scan after the last
// pick so ties rotate across units. The semaphore guarantees one has room.
func (p *Pool) pickLocked() *unit {
	var best *unit
	n := len(p.units)
	for i := 0; i < n; i++ {
		u := p.units[(p.next+i)%n]
		if u.inFlight >= p.threads {
			continue
		}
		if best == nil || u.inFlight < best.inFlight {
			best = u
		}
	}
	p.next = (best.id) % n
	return best
}

// Stats returns a snapshot of every unit.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stats, len(p.units))
	for i, u := range p.units {
		out[i] = Stats{ID: u.id, Generation: u.generation, InFlight: u.inFlight, Served: u.served, Restarts: u.restarts}
	}
	return out
}

// InFlight is the number of outstanding leases.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, u := range p.units {
		n += u.inFlight
	}
	return n
}

// Close stops admitting new work. Outstanding leases stay valid.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Lease is one occupied slot.
type Lease struct {
	pool       *Pool
	unit       *unit
	generation int
	once       sync.Once
}

// Worker is the id of the unit the lease runs on.
func (l *Lease) Worker() int { return l.unit.id }

// Release frees the slot. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.mu.Lock()
		l.unit.inFlight--
		l.unit.served++
		l.pool.mu.Unlock()
		l.pool.sem.Release(1)
	})
}

// Crash restarts the lease's unit and releases the slot. A unit is only
// restarted once per generation even if several of its requests crash.
func (l *Lease) Crash(cause any) {
	p := l.pool
	p.mu.Lock()
	restarted := false
	gen := l.unit.generation
	if l.unit.generation == l.generation {
		l.unit.generation++
		l.unit.restarts++
		gen = l.unit.generation
		restarted = true
	}
	hook := p.OnRestart
	p.mu.Unlock()

	if restarted && hook != nil {
		hook(l.unit.id, gen, cause)
	}
	l.Release()
}
