package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
)

// Trigger requests carry only object metadata.
const maxRequestBytes = 1 << 20

// Handler is the HTTP trigger of the pipeline. Each POST request names one
// uploaded object. Every request which reaches the pipeline is answered with
// 200 and the outcome message, including failed ones, so that senders do not
// redeliver it.
func (p *Pipeline) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			log.WithField("error", err).Warn("reading trigger request")
			http.Error(w, fmt.Sprintf("reading request: %s", err), http.StatusRequestEntityTooLarge)
			return
		}

		var message string
		if ev, err := DecodeHTTPEvent(body); errors.Is(err, ErrSkipEvent) {
			log.WithField("reason", err).Debug("skipping trigger request")
			message = fmt.Sprintf("Skipped: %s.", err)
		} else if err != nil {
			log.WithField("error", err).Error("decoding trigger request")
			message = fmt.Sprintf("Invalid trigger request: %s.", err)
		} else {
			message = p.Process(r.Context(), ev).Message
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, message)
	})
}

// Subscribe processes the Cloud Storage notifications delivered to sub until
// ctx is cancelled. Every message is acknowledged once it has been processed,
// whatever its outcome. maxOutstanding bounds the number of objects processed
// concurrently.
func (p *Pipeline) Subscribe(ctx context.Context, sub *pubsub.Subscription, maxOutstanding int) error {
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding

	log.WithFields(log.Fields{
		"subscription":   sub.String(),
		"maxOutstanding": maxOutstanding,
	}).Info("receiving object notifications")

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		defer m.Ack()
		p.handleMessage(ctx, m.ID, m.Data, m.Attributes)
	})
}

func (p *Pipeline) handleMessage(ctx context.Context, id string, data []byte, attrs map[string]string) Outcome {
	ev, err := DecodeNotification(data, attrs)
	if errors.Is(err, ErrSkipEvent) {
		log.WithFields(log.Fields{"message": id, "reason": err}).Debug("skipping notification")
		return Outcome{}
	} else if err != nil {
		log.WithFields(log.Fields{"message": id, "error": err}).Error("decoding notification")
		return Outcome{Status: StatusFailed, Err: err}
	}

	return p.Process(ctx, ev)
}
