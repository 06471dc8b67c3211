package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"questmine/internal/core/domain"
	"questmine/internal/infrastructure/resilience"
)

const workerGroup = "workers"

// batchEnvelope is the wire form of a queued batch. EnqueuedAt lets
// the consumer report how long the batch sat in the queue.
type batchEnvelope struct {
	EnqueuedAt time.Time    `json:"enqueued_at"`
	Batch      domain.Batch `json:"batch"`
}

// Queue publishes extraction batches and feeds them to a single worker
// group. Core NATS gives at-most-once delivery; the run journal is the
// durable record of what actually happened to a batch.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
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

	conn, err := nats.Connect(
		url,
		nats.Name("questmine"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishBatch enqueues the batch with its full document payloads.
// Batches carrying large paper texts can exceed the server's message
// limit; that is rejected here rather than surfacing as a broker error.
func (q *Queue) PublishBatch(ctx context.Context, batch domain.Batch) error {
	payload, err := json.Marshal(batchEnvelope{
		EnqueuedAt: time.Now().UTC(),
		Batch:      batch,
	})
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.ID, err)
	}
	if max := q.conn.MaxPayload(); int64(len(payload)) > max {
		return domain.WrapError(domain.ErrInvalidInput, "publish batch",
			fmt.Errorf("batch %s payload is %d bytes, server limit is %d", batch.ID, len(payload), max))
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
	return wrapTemporaryIfNeeded(err)
}

// SubscribeBatches delivers batches to the handler one at a time; a
// single queue subscription keeps the worker strictly sequential.
// Blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeBatches(ctx context.Context, handler func(context.Context, domain.Batch) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var envelope batchEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			q.logger.Error("batch decode failed, message dropped", "error", err)
			return
		}
		batch := envelope.Batch
		if !envelope.EnqueuedAt.IsZero() {
			q.logger.Info("batch dequeued",
				"batch_id", batch.ID,
				"documents", len(batch.Documents),
				"queued_ms", time.Since(envelope.EnqueuedAt).Milliseconds(),
			)
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, batch); err != nil {
			q.logger.Error("batch handler failed", "batch_id", batch.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
