package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/metrics"
	"campusmarket/pkg/logger"
)

const (
	// TaskNotifyMessage fans a stored message out to its participants.
	TaskNotifyMessage = "message:notify"

	notifyQueue = "notifications"

	// enqueueTimeout bounds the Redis write; the task timeout bounds delivery.
	enqueueTimeout = 2 * time.Second
)

// MessageNotifier is implemented by usecase.Notifier.
type MessageNotifier interface {
	Notify(ctx context.Context, message *entity.Message) error
}

type notifyPayload struct {
	Message *entity.Message `json:"message"`
}

// ParseRedisOpt converts a redis:// URL into asynq connection options.
func ParseRedisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return opt, nil
}

// AsynqDispatcher hands notifications to a Redis-backed queue so they survive
// a busy process and are processed by any worker.
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration, m *metrics.Metrics) *AsynqDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsynqDispatcher{
		client:  client,
		timeout: timeout,
		metrics: m,
	}
}

// NewNotifyTask builds the task for message. Notifications are delivered at
// most once, so the task is never retried.
func NewNotifyTask(message *entity.Message, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(notifyPayload{Message: message})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyMessage, payload,
		asynq.Queue(notifyQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	), nil
}

// Dispatch enqueues the notification in the background and returns at once,
// so a slow or unreachable Redis never delays the caller. Failures are
// logged and counted.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, message *entity.Message) {
	task, err := NewNotifyTask(message, d.timeout)
	if err != nil {
		d.metrics.RecordDispatchError()
		logger.Error("queue: encode notification for message %s: %v", message.ID, err)
		return
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		if _, err := d.client.EnqueueContext(enqueueCtx, task); err != nil {
			d.metrics.RecordDispatchError()
			logger.Warn("queue: enqueue notification for message %s: %v", message.ID, err)
		}
	}()
}

// Wait blocks until every pending enqueue has finished.
func (d *AsynqDispatcher) Wait() {
	d.wg.Wait()
}

// HandleNotifyTask runs the notifier for a queued message.
func HandleNotifyTask(notifier MessageNotifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p notifyPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil || p.Message == nil {
			return fmt.Errorf("queue: malformed %s payload: %w", TaskNotifyMessage, asynq.SkipRetry)
		}
		if err := notifier.Notify(ctx, p.Message); err != nil {
			return fmt.Errorf("queue: notify message %s: %v: %w", p.Message.ID, err, asynq.SkipRetry)
		}
		return nil
	}
}

// Worker processes queued notifications in this process.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(opt asynq.RedisConnOpt, notifier MessageNotifier, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{notifyQueue: 1},
		Logger:      asynqLogger{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("queue: task %s failed: %v", task.Type(), err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskNotifyMessage, HandleNotifyTask(notifier))
	return &Worker{server: srv, mux: mux}
}

// Run starts the worker and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("queue: start worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

// asynqLogger routes asynq's internal logs through the service logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debug("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Info("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warn("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Error("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Error("asynq: %s", fmt.Sprint(args...)) }
