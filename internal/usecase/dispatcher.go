package usecase

import (
	"context"
	"sync"
	"time"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/metrics"
	"campusmarket/pkg/logger"
)

// AsyncDispatcher notifies in a background goroutine per message. The
// notification outlives the request context but is bounded by timeout.
type AsyncDispatcher struct {
	notifier MessageNotifier
	timeout  time.Duration
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func NewAsyncDispatcher(notifier MessageNotifier, timeout time.Duration, m *metrics.Metrics) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncDispatcher{
		notifier: notifier,
		timeout:  timeout,
		metrics:  m,
	}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, message *entity.Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.metrics.RecordDispatchError()
				logger.Error("Notify panic for message %s: %v", message.ID, r)
			}
		}()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(notifyCtx, message); err != nil {
			d.metrics.RecordDispatchError()
			logger.Warn("Notify failed for message %s: %v", message.ID, err)
		}
	}()
}

// Wait blocks until in-flight notifications finish. Used on shutdown.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
