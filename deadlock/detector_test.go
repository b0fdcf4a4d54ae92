package deadlock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/go-easyfs/easyfs/deadlock"
	"github.com/go-easyfs/easyfs/ksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadCreateReusesFreedSlots(t *testing.T) {
	d := deadlock.New(2, 4)
	t0, ok := d.ThreadCreate()
	require.True(t, ok)
	t1, ok := d.ThreadCreate()
	require.True(t, ok)
	assert.NotEqual(t, t0, t1)

	_, ok = d.ThreadCreate()
	assert.False(t, ok, "both slots should be occupied")

	d.ExitThread(t0)
	reused, ok := d.ThreadCreate()
	require.True(t, ok)
	assert.Equal(t, t0, reused)
}

func TestResourceCreateAssignsDistinctIDs(t *testing.T) {
	d := deadlock.New(4, 2)
	m0 := d.MutexCreate()
	m1 := d.MutexCreate()
	assert.NotEqual(t, m0, m1)

	s0 := d.SemaphoreCreate(3)
	assert.NotEqual(t, s0, m1)
}

func TestExitThreadReturnsAllocationAndClearsNeed(t *testing.T) {
	d := deadlock.New(2, 1)
	d.EnableDetection(true)
	tid, _ := d.ThreadCreate()
	sem := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())
	r := d.SemaphoreCreate(1)

	require.Equal(t, 0, d.Down(tid, r, sem))
	d.ExitThread(tid)

	// The resource slot's Available count is restored by ExitThread; a
	// fresh thread can acquire it immediately (against its own real
	// semaphore instance — ExitThread only reconciles the detector's
	// bookkeeping, not any real primitive the exited thread still held).
	other, _ := d.ThreadCreate()
	freshSem := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())
	assert.Equal(t, 0, d.Down(other, r, freshSem))
}

func TestLockUnlockRoundTripWithRealMutex(t *testing.T) {
	d := deadlock.NewDefault()
	d.EnableDetection(true)
	tid, _ := d.ThreadCreate()
	r := d.MutexCreate()
	mutex := ksync.NewBlockingMutex(ksync.NewCooperativeRuntime())

	assert.Equal(t, 0, d.Lock(tid, r, mutex))
	d.Unlock(tid, r, mutex)

	assert.True(t, d.Safe())
}

// TestDetectorRefusesUnsafeSecondRequest reproduces the two-semaphore,
// three-thread scenario: thread 1 holds s0 and additionally requests s1
// (safe, since nothing yet needs s0 back); thread 2 holds s1 and then
// requests s0, which would complete a cycle and is refused outright.
func TestDetectorRefusesUnsafeSecondRequest(t *testing.T) {
	d := deadlock.NewDefault()
	d.EnableDetection(true)

	t0, _ := d.ThreadCreate()
	t1, _ := d.ThreadCreate()
	_, _ = d.ThreadCreate()

	s0 := d.SemaphoreCreate(1)
	s1 := d.SemaphoreCreate(1)

	sem0 := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())
	sem1 := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())

	require.Equal(t, 0, d.Down(t0, s0, sem0))
	require.Equal(t, 0, d.Down(t1, s1, sem1))

	// Thread 1 requesting s1 is still safe at this point (thread 2 has not
	// yet asked for anything else), so it is allowed to proceed — and blocks
	// for real on the underlying semaphore, since sem1's count is already 0.
	var wg sync.WaitGroup
	wg.Add(1)
	t0Done := make(chan int, 1)
	go func() {
		defer wg.Done()
		t0Done <- d.Down(t0, s1, sem1)
	}()

	// Give the goroutine a chance to reach the real block.
	time.Sleep(20 * time.Millisecond)

	// Thread 2 now requests s0: granting it would complete a cycle (t0 needs
	// s1 held by t1, t1 would need s0 held by t0), so it must be refused.
	code := d.Down(t1, s0, sem0)
	assert.Equal(t, deadlock.RefusedCode, code)

	// Release s1 so the blocked goroutine can finish and the test can exit
	// cleanly.
	d.Up(t1, s1, sem1)
	wg.Wait()
	assert.Equal(t, 0, <-t0Done)
}

// TestSafeConsidersEveryResourceColumn reproduces the false-negative guard:
// three semaphores (capacities 1, 1, 2) each held by a different thread; a
// fourth thread's prospective request for s2 (which still has one free unit)
// must be declared safe, which only holds if Safe inspects every resource
// column rather than just the one being requested.
func TestSafeConsidersEveryResourceColumn(t *testing.T) {
	d := deadlock.NewDefault()
	d.EnableDetection(true)

	t0, _ := d.ThreadCreate()
	t1, _ := d.ThreadCreate()
	t2, _ := d.ThreadCreate()
	t3, _ := d.ThreadCreate()

	s0 := d.SemaphoreCreate(1)
	s1 := d.SemaphoreCreate(1)
	s2 := d.SemaphoreCreate(2)

	sem0 := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())
	sem1 := ksync.NewSemaphore(1, ksync.NewCooperativeRuntime())
	sem2 := ksync.NewSemaphore(2, ksync.NewCooperativeRuntime())

	require.Equal(t, 0, d.Down(t0, s0, sem0))
	require.Equal(t, 0, d.Down(t1, s1, sem1))
	require.Equal(t, 0, d.Down(t2, s2, sem2))

	assert.Equal(t, 0, d.Down(t3, s2, sem2))
	d.Up(t3, s2, sem2)
}
