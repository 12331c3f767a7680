package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/mail"
)

// Worker drains a Queue into a mail.Sender. Failed deliveries are logged and
// dropped.
type Worker struct {
	queue       Queue
	sender      mail.Sender
	logger      zerolog.Logger
	sendTimeout time.Duration
}

func NewWorker(queue Queue, sender mail.Sender, logger zerolog.Logger) *Worker {
	return &Worker{queue: queue, sender: sender, logger: logger, sendTimeout: 30 * time.Second}
}

// Run processes jobs until ctx is cancelled. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("outbox worker started")
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info().Msg("outbox worker stopped")
				return nil
			}
			w.logger.Error().Err(err).Msg("outbox dequeue failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process renders and sends a single job.
func (w *Worker) Process(ctx context.Context, job EmailJob) {
	log := w.logger.With().Uint("notification_id", job.NotificationID).Str("to", job.To).Logger()

	body, err := mail.RenderNotification(mail.NotificationData{
		RecipientName: job.RecipientName,
		Title:         job.Subject,
		Message:       job.Message,
		Link:          job.Link,
	})
	if err != nil {
		log.Error().Err(err).Msg("render email failed")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	if err := w.sender.Send(sendCtx, job.To, job.Subject, body); err != nil {
		log.Warn().Err(err).Msg("email delivery failed")
		return
	}
	log.Debug().Msg("email sent")
}
