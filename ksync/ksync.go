// Package ksync implements the four lock primitives of spec §4.7 — spin
// mutex, blocking mutex, counting semaphore, condition variable — each with
// a FIFO wait queue, built against the TaskRuntime seam (spec §2/§4.9: the
// cooperative single-core task runtime is an external collaborator, not
// implemented here). No analog exists anywhere in the example corpus or the
// wider Go ecosystem for a cooperative-scheduler wait-queue primitive, since
// it is inherently single-process kernel bookkeeping; this package is
// grounded directly on the call-site contract in
// original_source/os/src/syscall/sync.rs (lock/unlock, down/up, wait/signal)
// rather than on any library. Each primitive guards its own bookkeeping with
// a plain sync.Mutex, held only around the bookkeeping itself and never
// across a runtime call that blocks or wakes a task, so the same primitive
// can be driven by concurrently-scheduled tasks rather than strictly one at
// a time.
package ksync

import (
	"container/list"
	"sync"
)

// TaskRuntime is the cooperative task runtime the lock primitives suspend
// into and resume from. It is an external collaborator (spec §2, §9's
// "Global mutable state" note): the core never schedules tasks itself.
type TaskRuntime interface {
	// CurrentTask returns an opaque handle for the task presently running.
	CurrentTask() any
	// BlockCurrentAndRunNext suspends the current task and runs the next
	// ready one; it does not return until something wakes the caller back
	// up.
	BlockCurrentAndRunNext()
	// Wakeup marks task ready to run again.
	Wakeup(task any)
}

// SpinMutex busy-waits: Lock yields cooperatively (via the runtime) each
// turn it finds the bit set, rather than enqueuing.
type SpinMutex struct {
	mu      sync.Mutex
	locked  bool
	runtime TaskRuntime
}

// NewSpinMutex creates an unlocked spin mutex bound to runtime.
func NewSpinMutex(runtime TaskRuntime) *SpinMutex {
	return &SpinMutex{runtime: runtime}
}

// Lock busy-waits until the mutex is free, then takes it.
func (m *SpinMutex) Lock() {
	for {
		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		// Yield: suspend and immediately mark ourselves ready again, giving
		// other ready tasks a turn before we re-check the bit.
		self := m.runtime.CurrentTask()
		m.runtime.Wakeup(self)
		m.runtime.BlockCurrentAndRunNext()
	}
}

// Unlock releases the mutex.
func (m *SpinMutex) Unlock() {
	m.mu.Lock()
	m.locked = false
	m.mu.Unlock()
}

// BlockingMutex maintains a FIFO wait queue of task handles: Lock enqueues
// and blocks instead of spinning; Unlock wakes the head of the queue, which
// takes ownership directly rather than re-contending for the bit.
type BlockingMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters *list.List
	runtime TaskRuntime
}

// NewBlockingMutex creates an unlocked blocking mutex bound to runtime.
func NewBlockingMutex(runtime TaskRuntime) *BlockingMutex {
	return &BlockingMutex{waiters: list.New(), runtime: runtime}
}

// Lock blocks the caller until the mutex is free.
func (m *BlockingMutex) Lock() {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	m.waiters.PushBack(m.runtime.CurrentTask())
	m.mu.Unlock()

	m.runtime.BlockCurrentAndRunNext()
}

// Unlock releases the mutex.
func (m *BlockingMutex) Unlock() {
	m.mu.Lock()
	front := m.waiters.Front()
	if front == nil {
		m.locked = false
		m.mu.Unlock()
		return
	}
	m.waiters.Remove(front)
	m.mu.Unlock()

	m.runtime.Wakeup(front.Value)
}

// Semaphore is a counting semaphore: Down decrements the count and blocks
// only once it goes negative; Up increments it and wakes one waiter if the
// count is still non-positive after incrementing.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters *list.List
	runtime TaskRuntime
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(initial int, runtime TaskRuntime) *Semaphore {
	return &Semaphore{count: initial, waiters: list.New(), runtime: runtime}
}

// Down acquires one unit, blocking if none is available.
func (s *Semaphore) Down() {
	s.mu.Lock()
	s.count--
	block := s.count < 0
	if block {
		s.waiters.PushBack(s.runtime.CurrentTask())
	}
	s.mu.Unlock()

	if block {
		s.runtime.BlockCurrentAndRunNext()
	}
}

// Up releases one unit, waking the longest-waiting blocked task if any.
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.count++
	var wake any
	if s.count <= 0 {
		if front := s.waiters.Front(); front != nil {
			s.waiters.Remove(front)
			wake = front.Value
		}
	}
	s.mu.Unlock()

	if wake != nil {
		s.runtime.Wakeup(wake)
	}
}

// Condvar is a condition variable: Wait atomically releases mutex, enqueues
// the caller, and blocks; on wake it reacquires mutex before returning.
type Condvar struct {
	mu      sync.Mutex
	waiters *list.List
	runtime TaskRuntime
}

// Locker is the subset of BlockingMutex/SpinMutex's interface Condvar needs.
type Locker interface {
	Lock()
	Unlock()
}

// NewCondvar creates an empty condition variable bound to runtime.
func NewCondvar(runtime TaskRuntime) *Condvar {
	return &Condvar{waiters: list.New(), runtime: runtime}
}

// Wait releases mutex, blocks until Signal wakes this caller, then
// reacquires mutex before returning.
func (c *Condvar) Wait(mutex Locker) {
	c.mu.Lock()
	c.waiters.PushBack(c.runtime.CurrentTask())
	c.mu.Unlock()

	mutex.Unlock()
	c.runtime.BlockCurrentAndRunNext()
	mutex.Lock()
}

// Signal wakes the longest-waiting blocked task, if any.
func (c *Condvar) Signal() {
	c.mu.Lock()
	front := c.waiters.Front()
	var wake any
	if front != nil {
		c.waiters.Remove(front)
		wake = front.Value
	}
	c.mu.Unlock()

	if wake != nil {
		c.runtime.Wakeup(wake)
	}
}
