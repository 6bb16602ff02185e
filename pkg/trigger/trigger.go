// Package trigger decides when mining runs. Event mode reacts to
// trace-ingested events on a watermill bus and mines a fingerprint as
// soon as it has enough traces; interval mode periodically sweeps every
// fingerprint in the trace store.
package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/miner"
	"github.com/loomkit/loom/pkg/store"
)

// TopicTraceIngested carries TraceIngested events.
const TopicTraceIngested = "loom.traces.ingested"

// TraceIngested announces that a fingerprint gained a successful trace.
type TraceIngested struct {
	Fingerprint string `json:"fingerprint"`
	TraceCount  int    `json:"trace_count"`
}

// FingerprintMiner is the part of the miner the trigger drives.
type FingerprintMiner interface {
	MineFingerprint(ctx context.Context, fingerprint string) *miner.CycleResult
	MineAll(ctx context.Context, fingerprints []string) []*miner.CycleResult
}

// NewBus creates the in-process pub/sub both sides of the trigger
// share. GoChannel implements publisher and subscriber on one value.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1000},
		watermill.NopLogger{},
	)
}

// Ingestor stores incoming traces and announces them on the bus.
type Ingestor struct {
	traces    store.TraceStore
	publisher message.Publisher
}

// NewIngestor wires trace persistence to event publication.
func NewIngestor(traces store.TraceStore, publisher message.Publisher) *Ingestor {
	return &Ingestor{traces: traces, publisher: publisher}
}

// Ingest persists the trace and, when it was successful, publishes a
// TraceIngested event carrying the fingerprint's new trace count.
func (i *Ingestor) Ingest(ctx context.Context, trace *core.ExecutionTrace) error {
	if err := i.traces.PutTrace(ctx, trace); err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to persist trace")
	}
	if !trace.Success {
		return nil
	}

	count, err := i.traces.CountForFingerprint(ctx, trace.Fingerprint)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to count traces")
	}

	payload, err := json.Marshal(TraceIngested{Fingerprint: trace.Fingerprint, TraceCount: count})
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := i.publisher.Publish(TopicTraceIngested, msg); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to publish trace event")
	}
	return nil
}

// Trigger consumes TraceIngested events and fires mining cycles.
type Trigger struct {
	miner      FingerprintMiner
	traces     store.TraceStore
	subscriber message.Subscriber
	minTraces  int
	logger     *logging.Logger
}

// New wires a Trigger.
func New(m FingerprintMiner, traces store.TraceStore, subscriber message.Subscriber, minTraces int) *Trigger {
	return &Trigger{
		miner:      m,
		traces:     traces,
		subscriber: subscriber,
		minTraces:  minTraces,
		logger:     logging.GetLogger(),
	}
}

// Run consumes events until ctx is canceled or the bus closes. A
// fingerprint is mined once its trace count reaches the minimum; counts
// below it are acknowledged and ignored.
func (t *Trigger) Run(ctx context.Context) error {
	messages, err := t.subscriber.Subscribe(ctx, TopicTraceIngested)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to subscribe to trace events")
	}

	for msg := range messages {
		var event TraceIngested
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			t.logger.Warn(ctx, "dropping malformed trace event: %v", err)
			msg.Ack()
			continue
		}

		if event.TraceCount >= t.minTraces {
			result := t.miner.MineFingerprint(ctx, event.Fingerprint)
			t.logger.Info(ctx, "event-triggered cycle for %s: %s %s",
				event.Fingerprint, result.Status, result.Reason)
		}
		msg.Ack()
	}
	return nil
}

// RunInterval sweeps the trace store on every tick and mines all
// fingerprints. Blocks until ctx is canceled.
func (t *Trigger) RunInterval(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fingerprints, err := t.traces.ListFingerprints(ctx)
			if err != nil {
				t.logger.Error(ctx, "fingerprint sweep failed: %v", err)
				continue
			}
			if len(fingerprints) == 0 {
				continue
			}

			mined := 0
			for _, result := range t.miner.MineAll(ctx, fingerprints) {
				if result.Status == miner.StatusMined {
					mined++
				}
			}
			t.logger.Info(ctx, "interval sweep: %d fingerprints, %d mined", len(fingerprints), mined)
		}
	}
}
