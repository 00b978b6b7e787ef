package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes to multiple topics through one writer; each message
// carries its own topic. Shutdown hanya lewat context cancel: sisa pesan
// di inbox di-flush dulu sebelum writer ditutup.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message
	done  chan struct{}
	log   *logrus.Logger
}

func NewProducer(brokers []string, buf int, log *logrus.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
		log:   log,
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.WithError(err).WithField("topic", m.Topic).Error("kafka write failed")
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		defer func() { _ = p.w.Close() }()
		for {
			select {
			case <-ctx.Done():
				// flush sisa inbox lalu keluar
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// Publish antri pesan; drop kalau inbox penuh supaya request path tidak
// pernah nge-block di Kafka.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
	default:
		p.log.WithField("topic", topic).Warn("producer inbox full, dropping event")
	}
}

// WaitClosed blocks until the flush goroutine exits.
func (p *Producer) WaitClosed() { <-p.done }
