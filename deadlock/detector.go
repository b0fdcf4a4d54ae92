// Package deadlock implements the Banker's-algorithm deadlock-avoidance
// detector of spec §4.6: per-process Available/Allocation/Need matrices
// consulted before every mutex/semaphore acquisition. It is grounded
// directly on original_source/os/src/syscall/sync.rs's deadlock_detect,
// sys_mutex_lock/unlock, sys_semaphore_down/up, and
// sys_mutex_create/sys_semaphore_create — no library in the example corpus
// or the wider ecosystem implements Banker's-algorithm deadlock avoidance,
// so the matrices are plain slices guarded by the detector's own mutex.
package deadlock

import "sync"

// Default matrix dimensions (spec §4.6: RESOURCE_CATEG_NUM, MAX_THREAD_NUM),
// both overridable via New.
const (
	DefaultResourceCategories = 512
	DefaultMaxThreads         = 64
)

// RefusedCode is the syscall-level return value of a refused acquisition
// (spec §6's lock-related syscall convention): -0xDEAD.
const RefusedCode = -0xDEAD

// Detector tracks one process's resource bookkeeping. Resource ids are a
// single dense id-space shared between mutexes and semaphores (spec §9's
// "Detector granularity" note) — MutexCreate and SemaphoreCreate both draw
// from the same slot table.
type Detector struct {
	mu sync.Mutex

	Enabled bool

	resourceOccupied []bool
	available        []int32
	threadOccupied   []bool
	allocation       [][]int32
	need             [][]int32
}

// New creates a Detector with room for maxThreads threads (ThreadCreate fails
// once all are occupied). maxResources only presizes each thread's
// Allocation/Need rows: creating more resources than that grows the matrices
// rather than failing.
func New(maxThreads, maxResources int) *Detector {
	allocation := make([][]int32, maxThreads)
	need := make([][]int32, maxThreads)
	for t := range allocation {
		allocation[t] = make([]int32, maxResources)
		need[t] = make([]int32, maxResources)
	}
	return &Detector{
		resourceOccupied: make([]bool, 0, maxResources),
		available:        make([]int32, 0, maxResources),
		threadOccupied:   make([]bool, maxThreads),
		allocation:       allocation,
		need:             need,
	}
}

// NewDefault creates a Detector using the spec's default capacities.
func NewDefault() *Detector {
	return New(DefaultMaxThreads, DefaultResourceCategories)
}

// EnableDetection turns the Banker's-algorithm safety check on or off. With
// detection disabled, acquisitions are always granted (spec §4.6 step 2).
func (d *Detector) EnableDetection(enabled bool) {
	d.mu.Lock()
	d.Enabled = enabled
	d.mu.Unlock()
}

// ThreadCreate reserves the first empty thread slot (or fails if every slot
// up to the configured MaxThreads is occupied).
func (d *Detector) ThreadCreate() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for tid, occ := range d.threadOccupied {
		if !occ {
			d.threadOccupied[tid] = true
			return tid, true
		}
	}
	return 0, false
}

// ExitThread releases every resource tid still holds back to Available and
// zeroes its Need row, so a reused thread slot starts from a clean state
// (spec §9's open-question resolution: without this, Need/Allocation rot
// across repeated thread-slot reuse).
func (d *Detector) ExitThread(tid int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for r := range d.available {
		d.available[r] += d.allocation[tid][r]
		d.allocation[tid][r] = 0
		d.need[tid][r] = 0
	}
	d.threadOccupied[tid] = false
}

// allocResourceSlotLocked returns the first unoccupied resource id, growing
// every matrix by one column if none is free — mirroring sys_mutex_create /
// sys_semaphore_create's "first empty slot, else append" scan.
func (d *Detector) allocResourceSlotLocked() int {
	for id, occ := range d.resourceOccupied {
		if !occ {
			d.resourceOccupied[id] = true
			d.available[id] = 0
			return id
		}
	}
	id := len(d.resourceOccupied)
	d.resourceOccupied = append(d.resourceOccupied, true)
	d.available = append(d.available, 0)
	for t := range d.allocation {
		d.allocation[t] = append(d.allocation[t], 0)
		d.need[t] = append(d.need[t], 0)
	}
	return id
}

// MutexCreate registers a new mutex resource, initializing its Available to
// 1, and returns its resource id.
func (d *Detector) MutexCreate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.allocResourceSlotLocked()
	d.available[id] = 1
	return id
}

// SemaphoreCreate registers a new semaphore resource with the given initial
// count and returns its resource id.
func (d *Detector) SemaphoreCreate(count int32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.allocResourceSlotLocked()
	d.available[id] = count
	return id
}

// beginAcquire implements spec §4.6 steps 1-3: Need is speculatively
// incremented and, if detection is enabled, the safety check runs against
// that speculative state. A refusal rolls Need back and returns RefusedCode
// without ever touching Allocation/Available — the request never reaches
// the real primitive. Note that a grant here does NOT yet move anything
// from Available to Allocation: the Banker's algorithm only certifies that
// it is safe to eventually hold the resource, not that a unit is free for
// the taking right now. The real primitive decides that, and may still
// block the caller.
func (d *Detector) beginAcquire(tid, resourceID int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.need[tid][resourceID]++
	if d.Enabled && !d.isSafeLocked() {
		d.need[tid][resourceID]--
		return RefusedCode
	}
	return 0
}

// commitAcquire implements spec §4.6 step 5, run only after the real
// primitive's acquire has actually succeeded (the caller may have blocked
// inside it for an arbitrary time).
func (d *Detector) commitAcquire(tid, resourceID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocation[tid][resourceID]++
	d.available[resourceID]--
	d.need[tid][resourceID]--
}

func (d *Detector) release(tid, resourceID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocation[tid][resourceID]--
	d.available[resourceID]++
}

// MutexLike is the subset of ksync.SpinMutex/ksync.BlockingMutex that Lock
// needs: the detector wraps the real primitive rather than replacing it.
type MutexLike interface {
	Lock()
	Unlock()
}

// SemaphoreLike is the subset of ksync.Semaphore that Down/Up need.
type SemaphoreLike interface {
	Down()
	Up()
}

// Lock runs the pre-acquisition safety check for tid against resourceID and,
// if not refused, calls mutex.Lock() (which may block for real) before
// committing the bookkeeping.
func (d *Detector) Lock(tid, resourceID int, mutex MutexLike) int {
	if code := d.beginAcquire(tid, resourceID); code != 0 {
		return code
	}
	mutex.Lock()
	d.commitAcquire(tid, resourceID)
	return 0
}

// Unlock calls mutex.Unlock() and releases the bookkeeping unit.
func (d *Detector) Unlock(tid, resourceID int, mutex MutexLike) {
	mutex.Unlock()
	d.release(tid, resourceID)
}

// Down runs the pre-acquisition safety check for tid against resourceID and,
// if not refused, calls sem.Down() (which may block for real) before
// committing the bookkeeping.
func (d *Detector) Down(tid, resourceID int, sem SemaphoreLike) int {
	if code := d.beginAcquire(tid, resourceID); code != 0 {
		return code
	}
	sem.Down()
	d.commitAcquire(tid, resourceID)
	return 0
}

// Up calls sem.Up() and releases the bookkeeping unit.
func (d *Detector) Up(tid, resourceID int, sem SemaphoreLike) {
	sem.Up()
	d.release(tid, resourceID)
}

// Safe reports whether the current state is safe under the Banker's
// algorithm (spec §4.6): exported for tests and for a caller that wants to
// probe safety without attempting an acquisition.
func (d *Detector) Safe() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isSafeLocked()
}

// isSafeLocked runs the Banker's algorithm over every resource category,
// not just the one that triggered the check (spec §4.6's explicit
// requirement — a single-column check produces false negatives).
func (d *Detector) isSafeLocked() bool {
	work := append([]int32(nil), d.available...)
	finish := make([]bool, len(d.threadOccupied))
	for t, occ := range d.threadOccupied {
		finish[t] = !occ
	}

	for {
		progressed := false
		for t, done := range finish {
			if done {
				continue
			}
			canFinish := true
			for r := range work {
				if d.need[t][r] > work[r] {
					canFinish = false
					break
				}
			}
			if !canFinish {
				continue
			}
			for r := range work {
				work[r] += d.allocation[t][r]
			}
			finish[t] = true
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, f := range finish {
		if !f {
			return false
		}
	}
	return true
}
