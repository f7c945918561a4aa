package httpd

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"dqx0.com/go/serverx/internal/obs"
)

// shutdownGrace bounds how long a dispatcher waits for in-flight
// connections after cancellation before abandoning them.
const shutdownGrace = 5 * time.Second

// ConnTask is one accepted connection waiting to be served. A task is served
// at most once and its socket is owned exclusively by whichever worker the
// dispatcher hands it to.
type ConnTask struct {
	srv  *Server
	conn net.Conn
}

// Serve runs the full request/response exchange and closes the connection.
func (t *ConnTask) Serve() {
	t.srv.serve(t.conn)
}

// Cancel closes the task's socket. Safe to call concurrently with Serve;
// the worker observes the close as an I/O error and falls through to its
// teardown path.
func (t *ConnTask) Cancel() {
	_ = t.conn.Close()
}

// Dispatcher decides how and where a connection's serve routine executes.
// Dispatch must be safe for concurrent callers. Dispatching after Shutdown
// drops the task.
type Dispatcher interface {
	Start()
	Dispatch(t *ConnTask)
	Shutdown()
}

// poolCore is the bookkeeping shared by the pooled dispatcher variants:
// an unbounded set of worker goroutines, cancellation of in-flight tasks on
// shutdown, and a bounded grace wait.
type poolCore struct {
	mu      sync.Mutex
	running bool
	active  map[*ConnTask]struct{}
	wg      sync.WaitGroup
}

func (p *poolCore) start() {
	p.mu.Lock()
	p.running = true
	p.active = make(map[*ConnTask]struct{})
	p.mu.Unlock()
}

func (p *poolCore) submit(t *ConnTask, run func()) bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		t.Cancel()
		return false
	}
	p.active[t] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.done(t)
		run()
	}()
	return true
}

func (p *poolCore) done(t *ConnTask) {
	p.mu.Lock()
	delete(p.active, t)
	p.mu.Unlock()
	p.wg.Done()
}

func (p *poolCore) shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for t := range p.active {
		t.Cancel()
	}
	p.mu.Unlock()
	if !waitTimeout(&p.wg, shutdownGrace) {
		obs.Logf(obs.Warn, "dispatcher: abandoning connections still active after %v", shutdownGrace)
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// PoolDispatcher serves each connection on its own goroutine from an
// unbounded pool. This is the default.
type PoolDispatcher struct {
	pool poolCore
}

func (d *PoolDispatcher) Start()               { d.pool.start() }
func (d *PoolDispatcher) Dispatch(t *ConnTask) { d.pool.submit(t, t.Serve) }
func (d *PoolDispatcher) Shutdown()            { d.pool.shutdown() }

// CountingDispatcher schedules like PoolDispatcher and additionally keeps an
// atomically updated count of active connections, logging every transition
// and mirroring it to Meter. Observability only; scheduling semantics are
// identical to PoolDispatcher.
type CountingDispatcher struct {
	// Meter receives the connection gauge. Nil means log-only.
	Meter obs.Meter

	pool        poolCore
	connections atomic.Int64
}

func (d *CountingDispatcher) Start() { d.pool.start() }

func (d *CountingDispatcher) Dispatch(t *ConnTask) {
	d.pool.submit(t, func() {
		obs.Logf(obs.Info, "connections: %d", d.connections.Add(1))
		d.gauge(1)
		defer func() {
			obs.Logf(obs.Info, "connections: %d", d.connections.Add(-1))
			d.gauge(-1)
		}()
		t.Serve()
	})
}

func (d *CountingDispatcher) Shutdown() { d.pool.shutdown() }

// Connections returns the number of connections currently being served.
func (d *CountingDispatcher) Connections() int64 {
	return d.connections.Load()
}

func (d *CountingDispatcher) gauge(delta float64) {
	if d.Meter != nil {
		d.Meter.Gauge("httpd.connections", delta)
	}
}

// InlineDispatcher serves each connection synchronously on the caller's
// goroutine, serializing all connections. Intended for deterministic tests
// and single-connection embedded use.
type InlineDispatcher struct{}

func (InlineDispatcher) Start()               {}
func (InlineDispatcher) Dispatch(t *ConnTask) { t.Serve() }
func (InlineDispatcher) Shutdown()            {}

// FixedPoolDispatcher bounds concurrency to Workers connections. Dispatch
// blocks the accept loop once the pool is saturated, providing backpressure
// instead of unbounded goroutine growth.
type FixedPoolDispatcher struct {
	// Workers is the pool size. Zero or negative selects a default of 64.
	Workers int64

	pool poolCore
	sem  *semaphore.Weighted
}

func (d *FixedPoolDispatcher) Start() {
	n := d.Workers
	if n <= 0 {
		n = 64
	}
	d.sem = semaphore.NewWeighted(n)
	d.pool.start()
}

func (d *FixedPoolDispatcher) Dispatch(t *ConnTask) {
	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		t.Cancel()
		return
	}
	ok := d.pool.submit(t, func() {
		defer d.sem.Release(1)
		t.Serve()
	})
	if !ok {
		d.sem.Release(1)
	}
}

func (d *FixedPoolDispatcher) Shutdown() { d.pool.shutdown() }
