package consensus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrDispatcherStopped = errors.New("consensus: dispatcher not running")
	ErrDispatcherBusy    = errors.New("consensus: dispatcher queue full")
)

type request struct {
	event ConsensusEvent
	reply chan []ConsensusEvent // nil: publish on Outputs
}

// Dispatcher owns an Engine on a single goroutine and feeds it one
// request at a time. Every engine access from other goroutines goes
// through Submit, Enqueue or Inspect.
type Dispatcher struct {
	engine   *Engine
	logger   *zap.Logger
	requests chan request
	outputs  chan ConsensusEvent

	mu      sync.Mutex
	running bool
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher wraps engine. queue bounds the number of pending requests.
func NewDispatcher(engine *Engine, queue int, logger *zap.Logger) *Dispatcher {
	if queue <= 0 {
		queue = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		engine:   engine,
		logger:   logger.Named("dispatcher"),
		requests: make(chan request, queue),
		outputs:  make(chan ConsensusEvent, 64),
		done:     make(chan struct{}),
	}
}

// Start begins the actor loop. A stopped dispatcher cannot be restarted.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("consensus: dispatcher already running")
	}
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(d.done)
		d.loop(ctx)
	}()
	return nil
}

// Stop cancels any running round and waits for the loop to exit.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// Engine returns the wrapped engine. Only DeliverProposal, DeliverVote and
// SubscribeCommits may be called on it directly.
func (d *Dispatcher) Engine() *Engine {
	return d.engine
}

// Outputs returns events emitted for requests queued with Enqueue.
func (d *Dispatcher) Outputs() <-chan ConsensusEvent {
	return d.outputs
}

// Submit hands ev to the engine and waits for the events it emits.
func (d *Dispatcher) Submit(ctx context.Context, ev ConsensusEvent) ([]ConsensusEvent, error) {
	reply := make(chan []ConsensusEvent, 1)
	if err := d.send(ctx, request{event: ev, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDispatcherStopped
	}
}

// Enqueue hands ev to the engine without waiting; emitted events are
// published on Outputs.
func (d *Dispatcher) Enqueue(ev ConsensusEvent) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.requests <- request{event: ev}:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Inspect runs fn on the actor goroutine and waits for it. While a round
// is running fn is served from inside the round's phase waits, so it does
// not queue behind the round.
func (d *Dispatcher) Inspect(ctx context.Context, fn func(*Engine)) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	in := inspection{fn: fn, done: make(chan struct{})}
	select {
	case d.engine.inspectCh <- in:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}

	select {
	case <-in.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) send(ctx context.Context, req request) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
}

// loop is the actor loop. All engine state mutations happen here.
func (d *Dispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case in := <-d.engine.inspectCh:
			in.run(d.engine)

		case req := <-d.requests:
			out := d.engine.HandleConsensusEvent(ctx, req.event)

			if req.reply != nil {
				req.reply <- out
				continue
			}
			for _, ev := range out {
				select {
				case d.outputs <- ev:
				default:
					d.logger.Warn("output channel full, dropping event",
						zap.String("event", ev.EventName()))
				}
			}
		}
	}
}
