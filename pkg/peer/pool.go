package peer

import (
	"runtime"
	"sync"

	"github.com/JekaMas/workerpool"
)

// Dispatcher is the process-wide shared worker pool acceptor Endpoints
// submit Servlet.Handle calls to (SPEC_FULL §5/§9). It is passed to an
// Endpoint as a collaborator (AcceptEndpoint's pool argument), so node
// lifecycle code can own its start/stop; SharedDispatcher supplies a
// lazily-created package-level default when none is passed.
//
// Sized at 4*runtime.NumCPU() maximum goroutines, backed by
// JekaMas/workerpool's unbounded FIFO task queue and its own idle-worker
// decay in place of an independently-tuned 60s timer (see DESIGN.md).
type Dispatcher struct {
	pool *workerpool.WorkerPool
}

// NewDispatcher builds a Dispatcher sized to the process's parallelism. A
// maxWorkers of 0 defaults to 4*runtime.NumCPU(), the distilled spec's
// upper bound.
func NewDispatcher(maxWorkers int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 4 * runtime.NumCPU()
	}
	return &Dispatcher{pool: workerpool.New(maxWorkers)}
}

// Submit hands task off to the pool without blocking the caller. Used by
// onBinaryMessage while still holding the endpoint's lock (SPEC_FULL §5):
// the handoff itself must never block.
func (d *Dispatcher) Submit(task func()) {
	d.pool.Submit(task)
}

// StopWait drains the queue and waits for in-flight tasks to finish. Tied
// to node shutdown, not to any single Endpoint's Close.
func (d *Dispatcher) StopWait() {
	d.pool.StopWait()
}

var (
	sharedDispatcherOnce sync.Once
	sharedDispatcher     *Dispatcher
)

// SharedDispatcher returns the lazily-initialized process-wide Dispatcher
// used by Endpoints constructed without an explicit one (AcceptEndpoint's
// default). Tests and standalone binaries that want isolated pools should
// construct their own Dispatcher and pass it explicitly instead.
func SharedDispatcher() *Dispatcher {
	sharedDispatcherOnce.Do(func() {
		sharedDispatcher = NewDispatcher(0)
	})
	return sharedDispatcher
}
