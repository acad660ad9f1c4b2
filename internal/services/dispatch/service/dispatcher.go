// Package service implements the priority dispatcher: a mutex-guarded
// heap feeding a single pull loop that paces handoffs to the router
// with a global token bucket and a burst gate
package service

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"backcheck/internal/core/infotype"
	"backcheck/internal/modkit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	"backcheck/internal/services/dispatch/domain"
	routerdom "backcheck/internal/services/router/domain"
)

const defaultRPM = 300

// basePriority maps a phase to its queue priority. Lower values pop
// first
var basePriority = map[infotype.Phase]int{
	infotype.PhaseFoundation:     5,
	infotype.PhaseReconciliation: 4,
	infotype.PhaseRecords:        3,
	infotype.PhaseIntelligence:   2,
	infotype.PhaseNetwork:        2,
}

// priorityFor computes the effective priority: phase base, then one
// step per modifier token ("+" raises, meaning a lower value), floored
// at 1
func priorityFor(phase infotype.Phase, modifiers []string) int {
	p, ok := basePriority[phase]
	if !ok {
		p = 3
	}
	for _, m := range modifiers {
		if m == "" {
			continue
		}
		switch m[0] {
		case '+':
			p--
		case '-':
			p++
		}
	}
	if p < 1 {
		p = 1
	}
	return p
}

// item is one queued submission. seq breaks priority ties FIFO
type item struct {
	sub  domain.Submission
	prio int
	seq  uint64
	at   time.Time
}

type queue []*item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*item)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// Config controls the dispatcher
type Config struct {
	// RPM is the global cross-provider budget: bucket capacity in
	// tokens, refilled at RPM/60 per second
	RPM int

	// Metrics defaults to a set registered on the default registerer;
	// tests inject one bound to a private registry
	Metrics *Metrics
}

// Dispatcher implements domain.DispatcherPort. One pull loop pops the
// heap in priority order, paces on the global bucket, and hands items
// to the router on worker goroutines bounded by the burst gate
type Dispatcher struct {
	router  routerdom.RouterPort
	tokens  *rate.Limiter
	burst   *semaphore.Weighted
	metrics *Metrics
	log     logger.Logger

	now func() time.Time

	mu      sync.Mutex
	q       queue
	seq     uint64
	pending map[infotype.Type]int
	buf     map[infotype.Type][]routerdom.RoutedResult
	change  chan struct{}
	wake    chan struct{}
	running bool

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs the dispatcher
func New(deps modkit.Deps, cfg Config, ports domain.Ports) *Dispatcher {
	if cfg.RPM <= 0 {
		cfg.RPM = defaultRPM
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	burst := cfg.RPM / 10
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		router:  ports.Router,
		tokens:  rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60), cfg.RPM),
		burst:   semaphore.NewWeighted(int64(burst)),
		metrics: cfg.Metrics,
		log:     deps.Log.With().Str("component", "dispatch").Logger(),
		now:     time.Now,
		pending: make(map[infotype.Type]int),
		buf:     make(map[infotype.Type][]routerdom.RoutedResult),
		change:  make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the pull loop. Calling Start on a running dispatcher
// is a no-op
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.runCancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop halts the pull loop and waits for in-flight dispatches to
// complete. Queued items stay queued for a later Start
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.runCancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// Submit enqueues one routed query under its computed priority
func (d *Dispatcher) Submit(ctx context.Context, sub domain.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub.InfoType == "" {
		return perr.InvalidArgf("submission needs an info type")
	}
	if sub.Request.CheckType == "" {
		return perr.InvalidArgf("submission needs a routed request")
	}

	d.mu.Lock()
	d.seq++
	heap.Push(&d.q, &item{
		sub:  sub,
		prio: priorityFor(sub.Phase, sub.Modifiers),
		seq:  d.seq,
		at:   d.now(),
	})
	d.pending[sub.InfoType]++
	depth := d.q.Len()
	d.mu.Unlock()

	d.metrics.SetQueueDepth(depth)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// DispatchForType blocks until every submission for t has completed,
// then drains and returns t's result buffer
func (d *Dispatcher) DispatchForType(ctx context.Context, t infotype.Type) ([]routerdom.RoutedResult, error) {
	for {
		d.mu.Lock()
		if d.pending[t] == 0 {
			out := d.buf[t]
			delete(d.buf, t)
			d.mu.Unlock()
			return out, nil
		}
		ch := d.change
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// DispatchAll blocks until the queue and all in-flight work are done,
// then drains every buffer in type table order
func (d *Dispatcher) DispatchAll(ctx context.Context) ([]routerdom.RoutedResult, error) {
	for {
		d.mu.Lock()
		idle := true
		for _, n := range d.pending {
			if n > 0 {
				idle = false
				break
			}
		}
		if idle {
			var out []routerdom.RoutedResult
			for _, t := range infotype.All() {
				out = append(out, d.buf[t]...)
				delete(d.buf, t)
			}
			d.mu.Unlock()
			return out, nil
		}
		ch := d.change
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		it, ok := d.next(ctx)
		if !ok {
			return
		}

		switch d.awaitToken(ctx, it) {
		case tokenAborted:
			return
		case tokenExpired:
			continue
		case tokenReady:
		}

		if err := d.burst.Acquire(ctx, 1); err != nil {
			d.requeue(it)
			return
		}

		d.wg.Add(1)
		go func(it *item) {
			defer d.wg.Done()
			defer d.burst.Release(1)
			d.dispatch(it)
		}(it)
	}
}

// next pops the highest-priority item, blocking until one is queued or
// the loop is stopped
func (d *Dispatcher) next(ctx context.Context) (*item, bool) {
	for {
		d.mu.Lock()
		if d.q.Len() > 0 {
			it := heap.Pop(&d.q).(*item)
			depth := d.q.Len()
			d.mu.Unlock()
			d.metrics.SetQueueDepth(depth)
			return it, true
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-d.wake:
		}
	}
}

type tokenWait int

const (
	tokenReady tokenWait = iota
	tokenExpired
	tokenAborted
)

// awaitToken takes one global token for it, sleeping out any refill
// delay. When the delay would blow past the item's deadline the token
// is returned and the item completes as ALL_RATE_LIMITED without ever
// reaching a provider
func (d *Dispatcher) awaitToken(ctx context.Context, it *item) tokenWait {
	res := d.tokens.Reserve()
	delay := res.Delay()
	if delay == 0 {
		return tokenReady
	}

	deadline := it.sub.Request.Deadline
	if !deadline.IsZero() && d.now().Add(delay).After(deadline) {
		res.Cancel()
		d.log.Warn().
			Str("info_type", string(it.sub.InfoType)).
			Dur("token_delay", delay).
			Msg("global budget exhausted past deadline")
		d.complete(it, routerdom.RoutedResult{
			CheckType: it.sub.Request.CheckType,
			Failure: &routerdom.Failure{
				Reason:     routerdom.FailAllRateLimited,
				Message:    "global dispatch budget exhausted before deadline",
				RetryAfter: delay,
			},
		})
		return tokenExpired
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		d.requeue(it)
		return tokenAborted
	case <-t.C:
		return tokenReady
	}
}

// dispatch hands one item to the router. In-flight work survives Stop;
// the request deadline bounds it
func (d *Dispatcher) dispatch(it *item) {
	d.metrics.RecordQueueWait(string(it.sub.Phase), d.now().Sub(it.at).Seconds())
	res := d.router.Route(context.Background(), it.sub.Request)
	d.complete(it, res)
}

// complete buffers one result and wakes every waiter
func (d *Dispatcher) complete(it *item, res routerdom.RoutedResult) {
	t := it.sub.InfoType
	d.mu.Lock()
	d.buf[t] = append(d.buf[t], res)
	d.pending[t]--
	if d.pending[t] <= 0 {
		delete(d.pending, t)
	}
	close(d.change)
	d.change = make(chan struct{})
	d.mu.Unlock()

	d.metrics.RecordResult(string(t), res)
}

// requeue puts a popped-but-undispatched item back for a later Start
func (d *Dispatcher) requeue(it *item) {
	d.mu.Lock()
	heap.Push(&d.q, it)
	depth := d.q.Len()
	d.mu.Unlock()
	d.metrics.SetQueueDepth(depth)
}
