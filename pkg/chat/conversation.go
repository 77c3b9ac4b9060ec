package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/agrichat/pkg/logging"
	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/turn"
)

const DefaultQueueSize = 16

type queued struct {
	id string
	in Input
}

// Conversation serializes the turns of one chat session. Submit enqueues;
// a single worker processes turns in submission order and publishes each
// Output on Results in the same order. Close tears the session down: the
// in-flight turn is abandoned, queued turns are dropped and nothing more is
// published.
type Conversation struct {
	id      string
	orch    *Orchestrator
	fsm     *turn.Machine
	queue   chan queued
	results chan Output
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	onClose func(*Conversation)
	obs     metrics.Observer
	logger  *slog.Logger
}

func NewConversation(orch *Orchestrator, queueSize int) *Conversation {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Conversation{
		id:      id,
		orch:    orch,
		fsm:     turn.NewMachine(),
		queue:   make(chan queued, queueSize),
		results: make(chan Output, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		obs:     orch.obs,
		logger:  logging.NewComponentLogger(orch.logger, "conversation").With("conversation_id", id),
	}
	go c.run()
	return c
}

func (c *Conversation) ID() string { return c.id }

// Results yields rendered turns in submission order. It is closed after
// Close.
func (c *Conversation) Results() <-chan Output { return c.results }

// States exposes the turn state machine so transports can observe progress.
func (c *Conversation) States() *turn.Machine { return c.fsm }

// Submit enqueues in and returns its turn ID. It blocks while the queue is
// full, until ctx is done or the conversation is closed.
func (c *Conversation) Submit(ctx context.Context, in Input) (string, error) {
	id := uuid.NewString()
	if err := c.SubmitAs(ctx, id, in); err != nil {
		return "", err
	}
	return id, nil
}

// SubmitAs is Submit with a turn ID chosen by the caller, so the ID can be
// announced before the worker starts on the turn.
func (c *Conversation) SubmitAs(ctx context.Context, id string, in Input) error {
	if id == "" {
		return errors.New("chat: turn id required")
	}
	if c.ctx.Err() != nil {
		return ErrTornDown
	}
	select {
	case c.queue <- queued{id: id, in: in}:
		return nil
	case <-c.ctx.Done():
		return ErrTornDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the conversation down and waits for the worker to exit. It is
// safe to call more than once.
func (c *Conversation) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// Done is closed once the worker has exited.
func (c *Conversation) Done() <-chan struct{} { return c.done }

func (c *Conversation) run() {
	defer close(c.done)
	defer close(c.results)
	for {
		select {
		case <-c.ctx.Done():
			c.dropQueued()
			return
		case q := <-c.queue:
			if c.ctx.Err() != nil {
				c.drop(q.id)
				c.dropQueued()
				return
			}
			out, err := c.orch.Process(c.ctx, q.id, q.in, c.fsm)
			if err != nil {
				if !errors.Is(err, ErrTornDown) {
					c.logger.Error("turn_failed", "turn_id", q.id, "error", err)
				}
				c.drop(q.id)
				continue
			}
			// A turn that renders as Close lands is dropped, never raced
			// against the results send.
			if c.ctx.Err() != nil {
				c.drop(q.id)
				continue
			}
			select {
			case c.results <- out:
			case <-c.ctx.Done():
				c.drop(q.id)
			}
		}
	}
}

func (c *Conversation) dropQueued() {
	for {
		select {
		case q := <-c.queue:
			c.drop(q.id)
		default:
			return
		}
	}
}

func (c *Conversation) drop(turnID string) {
	c.logger.Debug("turn_dropped", "turn_id", turnID)
	c.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnDropped, Time: time.Now()})
}
