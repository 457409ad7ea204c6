package indexer

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/piclens/faceindex/engine/domain"
	"github.com/piclens/faceindex/pkg/natsutil"
)

const (
	// ArrivalSubject is the subject carrying image arrival notifications.
	ArrivalSubject = "gallery.image.new"
	// DLQSubject receives arrivals that failed processing, for offline
	// inspection. Nothing in this process consumes it.
	DLQSubject = "gallery.image.dlq"
	// ConsumerQueue is the queue group name; all worker instances share it.
	ConsumerQueue = "face-processor"
)

// AckPolicy selects the delivery guarantee for consumed arrivals.
type AckPolicy int

const (
	// AckAlways acknowledges every delivery regardless of processing
	// outcome: at-most-once. A transient failure silently drops the record.
	AckAlways AckPolicy = iota
	// AckOnSuccess acknowledges only after a successful index write (or a
	// permanent skip): at-least-once. The transport redelivers failures.
	AckOnSuccess
)

// StartConsumer subscribes the worker to the arrival subject. Messages on
// one subscription are delivered to the callback sequentially, so records
// are processed strictly one at a time; in-flight search requests run
// concurrently with this loop against the shared store.
func StartConsumer(nc *nats.Conn, w *Worker, policy AckPolicy) (*nats.Subscription, error) {
	log := w.log
	if log == nil {
		log = slog.Default()
	}

	return nc.QueueSubscribe(ArrivalSubject, ConsumerQueue, func(msg *nats.Msg) {
		ctx := natsutil.Extract(msg)

		var arrival domain.ImageArrival
		if err := json.Unmarshal(msg.Data, &arrival); err != nil {
			log.Error("indexer: malformed arrival", "error", err)
			ack(msg) // malformed messages can never succeed
			return
		}

		err := w.ProcessArrival(ctx, arrival)
		if err != nil && !IsSkip(err) {
			// Park the failed arrival for inspection. DLQ publish failures
			// are logged and dropped; they must not affect the loop.
			dlq := dlqMessage{Arrival: arrival, Error: err.Error()}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlq); pubErr != nil {
				log.Error("indexer: dlq publish failed", "error", pubErr, "image_id", arrival.ImageID)
			}
		}

		if shouldAck(policy, err) {
			ack(msg)
		}
	})
}

// shouldAck decides whether a delivery is acknowledged under the policy.
// Permanent skips are always acknowledged; redelivery can never fix them.
func shouldAck(policy AckPolicy, err error) bool {
	return policy == AckAlways || err == nil || IsSkip(err)
}

// dlqMessage is published to the DLQ on processing failure.
type dlqMessage struct {
	Arrival domain.ImageArrival `json:"arrival"`
	Error   string              `json:"error"`
}

// ack acknowledges JetStream deliveries; plain NATS messages have no reply
// subject and need no ack.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
