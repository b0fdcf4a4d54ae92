package ksync

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// CooperativeRuntime is a TaskRuntime test double used to exercise the lock
// primitives and the deadlock detector outside a real kernel scheduler
// (spec §2/§9: the task runtime is an external collaborator with no
// in-package implementation). It treats each calling goroutine as one
// cooperative task, identified by parsing its goroutine id out of a stack
// trace — real preemptive concurrency standing in for the single-core
// cooperative scheduler the spec describes, which is sufficient to drive
// the primitives' block/wake contract in unit tests.
type CooperativeRuntime struct {
	mu    sync.Mutex
	chans map[any]chan struct{}
}

// NewCooperativeRuntime creates an empty CooperativeRuntime.
func NewCooperativeRuntime() *CooperativeRuntime {
	return &CooperativeRuntime{chans: make(map[any]chan struct{})}
}

func (r *CooperativeRuntime) chanFor(task any) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.chans[task]
	if !ok {
		ch = make(chan struct{}, 1)
		r.chans[task] = ch
	}
	return ch
}

// CurrentTask identifies the calling goroutine.
func (r *CooperativeRuntime) CurrentTask() any {
	return goroutineID()
}

// BlockCurrentAndRunNext parks the calling goroutine until Wakeup is called
// with its task handle.
func (r *CooperativeRuntime) BlockCurrentAndRunNext() {
	<-r.chanFor(goroutineID())
}

// Wakeup unparks the goroutine identified by task.
func (r *CooperativeRuntime) Wakeup(task any) {
	select {
	case r.chanFor(task) <- struct{}{}:
	default:
	}
}

func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
