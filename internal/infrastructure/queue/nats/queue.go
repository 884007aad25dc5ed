package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/property-vault/internal/core/ports"
	"github.com/kirillkom/property-vault/internal/infrastructure/resilience"
)

const queueGroup = "workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	workers  int
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Workers              int
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	workers := options.Workers
	if workers <= 0 {
		workers = 1
	}

	conn, err := nats.Connect(
		url,
		nats.Name("property-vault"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		workers:  workers,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Enqueue(ctx context.Context, task ports.Task) error {
	if task.Version == 0 {
		task.Version = ports.TaskVersion
	}
	payload, err := encodeTask(task)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// Subscribe joins the worker queue group and runs at most q.workers handlers
// at a time. The subscription callback only waits for a free slot, so a
// burst stays in the client's pending list instead of being dropped as a
// slow consumer. When ctx is done the subscription is drained and Subscribe
// returns once every delivered task has been handled.
func (q *Queue) Subscribe(ctx context.Context, handler ports.TaskHandler) error {
	if handler == nil {
		return errors.New("task handler is nil")
	}
	// In-flight tasks finish on shutdown; the extraction timeout bounds them.
	handlerCtx := context.WithoutCancel(ctx)

	var pool errgroup.Group
	pool.SetLimit(q.workers)
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		pool.Go(func() error {
			q.handle(handlerCtx, msg, handler)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := sub.SetPendingLimits(-1, -1); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats pending limits: %w", err)
	}
	closed := sub.StatusChanged(nats.SubscriptionClosed)
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	if drainErr == nil {
		waitDrained(q.conn, sub, closed)
	}
	_ = pool.Wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	return nil
}

// waitDrained returns once the last pending message has gone through the
// subscription callback, or the connection is gone.
func waitDrained(conn *nats.Conn, sub *nats.Subscription, closed <-chan nats.SubStatus) {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case _, ok := <-closed:
			if !ok {
				return
			}
		case <-tick.C:
			if conn.IsClosed() || !sub.IsValid() {
				return
			}
		}
	}
}

func (q *Queue) handle(ctx context.Context, msg *nats.Msg, handler ports.TaskHandler) {
	task, err := decodeTask(msg.Data)
	if err != nil {
		slog.Error("worker_task_decode_error", "subject", msg.Subject, "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker_handler_panic", "document_id", task.DocumentID, "panic", r)
		}
	}()
	if err := handler(ctx, task); err != nil {
		slog.Error("worker_handler_error", "document_id", task.DocumentID, "request_id", task.RequestID, "error", err)
	}
}

func encodeTask(task ports.Task) ([]byte, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return payload, nil
}

// decodeTask also accepts a bare document id payload.
func decodeTask(data []byte) (ports.Task, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return ports.Task{}, errors.New("empty task payload")
	}
	if !strings.HasPrefix(raw, "{") {
		return ports.Task{DocumentID: raw, Version: ports.TaskVersion}, nil
	}
	var task ports.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return ports.Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if task.DocumentID == "" {
		return ports.Task{}, errors.New("task without document id")
	}
	return task, nil
}
