package conversation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studybuddy/backend/internal/telemetry"
)

const dequeueWait = 5 * time.Second

type jobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (Exchange, error)
	Ack(ctx context.Context, job Exchange) error
	Reclaim(ctx context.Context) (int, error)
}

// Worker drains the Redis job queue and feeds the manager. One worker per
// process is enough; ordering within a session is preserved by the FIFO
// queue.
type Worker struct {
	queue   jobSource
	manager *Manager
	logger  *log.Logger
	stop    chan struct{}
	done    chan struct{}
}

func NewWorker(queue jobSource, manager *Manager, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Worker{
		queue:   queue,
		manager: manager,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	ctx := context.Background()

	if n, err := w.queue.Reclaim(ctx); err != nil {
		w.logger.Printf("reclaiming in-flight jobs: %v", err)
	} else if n > 0 {
		w.logger.Printf("requeued %d jobs left in flight by a previous worker", n)
	}

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, dequeueWait)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			w.logger.Printf("dequeue failed: %v", err)
			select {
			case <-w.stop:
				return
			case <-time.After(dequeueWait):
			}
			continue
		}

		if err := w.manager.ProcessExchange(ctx, job); err != nil {
			telemetry.DeferredJobFailures.Inc()
			w.logger.Printf("processing exchange for session %s: %v", job.SessionID, err)
		}
		// acked even on failure: redelivery is for crashes, not for
		// retrying jobs the manager already gave up on
		if err := w.queue.Ack(ctx, job); err != nil {
			w.logger.Printf("acking exchange for session %s: %v", job.SessionID, err)
		}
	}
}
