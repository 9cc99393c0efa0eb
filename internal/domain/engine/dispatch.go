package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	"github.com/GriffinCanCode/keepalive/internal/shared/utils"
)

// dispatcher runs visibility events on a fixed set of workers. Events of
// one application always land on the same worker and keep their order.
type dispatcher struct {
	hasher *utils.Hasher
	handle func(types.VisibilityEvent)
	onDrop func(types.VisibilityEvent)
	logger *zap.Logger

	mu     sync.RWMutex
	queues []chan types.VisibilityEvent // Closed under mu
	closed bool                         // Protected by mu

	group *errgroup.Group
}

func newDispatcher(workers, queueSize int, handle func(types.VisibilityEvent), logger *zap.Logger) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &dispatcher{
		hasher: utils.NewHasher(workers),
		handle: handle,
		logger: logger,
		queues: make([]chan types.VisibilityEvent, workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan types.VisibilityEvent, queueSize)
	}
	return d
}

func (d *dispatcher) start() {
	d.group = new(errgroup.Group)
	for i, q := range d.queues {
		d.group.Go(func() error {
			d.work(i, q)
			return nil
		})
	}
}

func (d *dispatcher) work(id int, q <-chan types.VisibilityEvent) {
	for ev := range q {
		d.run(id, ev)
	}
}

func (d *dispatcher) run(id int, ev types.VisibilityEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Visibility handler panicked",
				zap.Int("worker", id),
				zap.String("app", ev.Identity().Key()),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.handle(ev)
}

// enqueue hands ev to its worker without blocking. It reports false when
// the worker queue is full or the dispatcher is stopped.
func (d *dispatcher) enqueue(ev types.VisibilityEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	shard := d.hasher.Shard(ev.Identity().Key())
	select {
	case d.queues[shard] <- ev:
		return true
	default:
		if d.onDrop != nil {
			d.onDrop(ev)
		}
		return false
	}
}

// stop closes the queues and waits for queued events to finish
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	if d.group != nil {
		_ = d.group.Wait()
	}
}

func (d *dispatcher) pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}
