// Package broadcaster tails the exit journal and publishes pending
// events to Kafka. It is the durable delivery path: an event is marked
// sent before the publish attempt and acked only on success, so a crash
// in between re-sends rather than drops.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	exitwal "odin/infra/wal/exit"
)

type Broadcaster struct {
	exit     *exitwal.WAL
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(exit *exitwal.WAL, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		exit:     exit,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// Run drains the journal until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
			b.retryStale()
		}
	}
}

func (b *Broadcaster) drainOnce() {
	err := b.exit.ScanByState(exitwal.StatePending, func(seq uint64, rec exitwal.Record) error {
		return b.send(seq, rec)
	})
	if err != nil {
		b.log.Warn("exit journal scan failed", zap.Error(err))
	}
}

// retryStale re-sends events that were marked sent but never acked
// (crash or broker failure between the two).
func (b *Broadcaster) retryStale() {
	cutoff := time.Now().Add(-30 * time.Second).UnixNano()
	err := b.exit.ScanByState(exitwal.StateSent, func(seq uint64, rec exitwal.Record) error {
		if rec.LastAttempt > cutoff {
			return nil
		}
		return b.send(seq, rec)
	})
	if err != nil {
		b.log.Warn("exit journal retry scan failed", zap.Error(err))
	}
}

func (b *Broadcaster) send(seq uint64, rec exitwal.Record) error {
	if err := b.exit.MarkSent(seq); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(rec.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		// stays sent; the stale pass retries it
		b.log.Warn("publish failed", zap.Uint64("seq", seq), zap.Error(err))
		return nil
	}

	return b.exit.MarkAcked(seq)
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
