package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/nari/internal/model"
)

// Dispatcher runs one invocation to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv *model.Invocation) *model.Response
}

// QueueGroup load-balances invocations across service replicas.
const QueueGroup = "nari"

// Listener consumes invocations from SubjectCommands. Each message is
// handled on its own goroutine, bounded by the concurrency limit.
type Listener struct {
	conn       *nats.Conn
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
	sub *nats.Subscription

	mu      sync.Mutex
	stopped bool
}

// NewListener returns a Listener. concurrency <= 0 means 16.
func NewListener(nc *nats.Conn, d Dispatcher, concurrency int, logger *slog.Logger) *Listener {
	if concurrency <= 0 {
		concurrency = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		conn:       nc,
		dispatcher: d,
		logger:     logger,
		timeout:    30 * time.Second,
		sem:        make(chan struct{}, concurrency),
	}
}

// Start subscribes and returns once the subscription is registered.
func (l *Listener) Start() error {
	sub, err := l.conn.QueueSubscribe(SubjectCommands, QueueGroup, func(msg *nats.Msg) {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			l.logger.Warn("dropping invocation received after shutdown", "subject", msg.Subject)
			return
		}
		l.wg.Add(1)
		l.mu.Unlock()

		l.sem <- struct{}{}
		go func() {
			defer func() {
				<-l.sem
				l.wg.Done()
			}()
			l.handle(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", SubjectCommands, err)
	}
	if err := l.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	l.sub = sub
	l.logger.Info("listening for commands", "subject", SubjectCommands, "queue", QueueGroup)
	return nil
}

// Stop drains the subscription, waits for the drain to finish, then waits
// for in-flight invocations. Messages still delivered after the drain
// deadline are dropped.
func (l *Listener) Stop() error {
	var err error
	if l.sub != nil {
		err = l.sub.Drain()
		if err == nil {
			err = l.awaitDrain(l.timeout + 5*time.Second)
		}
		l.sub = nil
	}
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wg.Wait()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}

// awaitDrain polls until the draining subscription is closed.
func (l *Listener) awaitDrain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for l.sub.IsValid() {
		if time.Now().After(deadline) {
			return errors.New("timed out draining command subscription")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (l *Listener) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var inv model.Invocation
	var resp *model.Response
	if err := json.Unmarshal(msg.Data, &inv); err != nil {
		l.logger.Warn("malformed invocation", "err", err)
		resp = &model.Response{Kind: model.KindArgumentError, Text: "❌ Malformed invocation."}
	} else {
		resp = l.dispatcher.Dispatch(ctx, &inv)
	}

	// A requester is always answered so it does not time out; whether a
	// silent response reaches the channel is the gateway's decision.
	if msg.Reply == "" && resp.Silent {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		l.logger.Error("failed to marshal response", "invocation_id", resp.InvocationID, "err", err)
		return
	}
	if msg.Reply != "" {
		err = msg.Respond(data)
	} else {
		err = l.conn.Publish(SubjectReplies, data)
	}
	if err != nil {
		l.logger.Warn("failed to deliver response", "invocation_id", resp.InvocationID, "err", err)
	}
}
