// Package hk provides a mechanism for registering cleanup/periodic
// functions which are invoked at specified intervals. Swarmlist aging
// (Swarmlist.ScheduleTick) and the transmitter's wall-clock chunk
// scheduler (Transmitter.ScheduleChunks) register through it rather than
// each rolling its own goroutine+ticker.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/NVIDIA/swarmcore/cmn/nlog"
)

// NameSuffix is the fixed suffix this module's packages append to the
// names they register with the housekeeper.
const NameSuffix = ".hk"

// CallFunc returns true to keep firing at `interval`, false to
// unregister itself.
type CallFunc func() (interval time.Duration, keep bool)

type request struct {
	name     string
	f        CallFunc
	interval time.Duration
	due      time.Time
	index    int // heap index
}

// Housekeeper runs a min-heap of timed requests on a single goroutine.
type Housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*request
	heap    reqHeap
	startCh chan struct{}
	started bool
	stopCh  chan struct{}
	wakeCh  chan struct{}
}

// DefaultHK is the process-wide housekeeper singleton.
var DefaultHK = New()

// startOnce lazily starts DefaultHK's dispatch loop the first time the
// package-level Reg is used, so production callers never need their own
// `go hk.DefaultHK.Run()`. Tests that want explicit control over the loop
// (e.g. to WaitStarted before asserting) still call TestInit + Run directly.
var startOnce sync.Once

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*request),
		startCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
	}
}

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }

// Reg registers f to be invoked every `interval`, starting after the
// first `interval` elapses.
func Reg(name string, f CallFunc, interval time.Duration) {
	startOnce.Do(func() { go DefaultHK.Run() })
	DefaultHK.Reg(name, f, interval)
}

// Unreg cancels a previously registered name.
func Unreg(name string) { DefaultHK.Unreg(name) }

// WaitStarted blocks until DefaultHK.Run has begun its loop.
func WaitStarted() { <-DefaultHK.startCh }

func (hk *Housekeeper) Reg(name string, f CallFunc, interval time.Duration) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if _, ok := hk.byName[name]; ok {
		nlog.Warningf("hk: re-registering %q", name)
	}
	r := &request{name: name, f: f, interval: interval, due: time.Now().Add(interval)}
	hk.byName[name] = r
	heap.Push(&hk.heap, r)
	hk.wake()
}

func (hk *Housekeeper) Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	r, ok := hk.byName[name]
	if !ok {
		return
	}
	delete(hk.byName, name)
	heap.Remove(&hk.heap, r.index)
}

func (hk *Housekeeper) wake() {
	select {
	case hk.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the heap until Stop is called. Intended to run in its own
// goroutine: `go hk.DefaultHK.Run()`.
func (hk *Housekeeper) Run() {
	hk.mu.Lock()
	if !hk.started {
		hk.started = true
		close(hk.startCh)
	}
	hk.mu.Unlock()

	for {
		hk.mu.Lock()
		var wait time.Duration
		if hk.heap.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(hk.heap[0].due)
		}
		hk.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			hk.fireDue()
		case <-hk.wakeCh:
			timer.Stop()
		case <-hk.stopCh:
			timer.Stop()
			return
		}
	}
}

func (hk *Housekeeper) fireDue() {
	now := time.Now()
	var due []*request
	hk.mu.Lock()
	for hk.heap.Len() > 0 && !hk.heap[0].due.After(now) {
		r := heap.Pop(&hk.heap).(*request)
		due = append(due, r)
	}
	hk.mu.Unlock()

	for _, r := range due {
		interval, keep := r.f()
		if !keep {
			hk.mu.Lock()
			delete(hk.byName, r.name)
			hk.mu.Unlock()
			continue
		}
		if interval <= 0 {
			interval = r.interval
		}
		r.interval = interval
		r.due = now.Add(interval)
		hk.mu.Lock()
		if _, ok := hk.byName[r.name]; ok {
			heap.Push(&hk.heap, r)
		}
		hk.mu.Unlock()
	}
}

func (hk *Housekeeper) Stop() { close(hk.stopCh) }

type reqHeap []*request

func (h reqHeap) Len() int            { return len(h) }
func (h reqHeap) Less(i, j int) bool   { return h[i].due.Before(h[j].due) }
func (h reqHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *reqHeap) Push(x any) {
	r := x.(*request)
	r.index = len(*h)
	*h = append(*h, r)
}
func (h *reqHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}
