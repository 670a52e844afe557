package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability/metrics"
)

// Publisher forwards collection changes to a broker topic.
type Publisher struct {
	client  Client
	topic   string
	now     func() time.Time
	metrics *metrics.MQTTMetrics
	log     logger.Logger
}

// NewPublisher creates a Publisher writing under topic. m may be nil.
func NewPublisher(c Client, topic string, m *metrics.MQTTMetrics) *Publisher {
	return &Publisher{
		client:  c,
		topic:   topic,
		now:     time.Now,
		metrics: m,
		log:     logger.Global().Module(component),
	}
}

// Topic returns the topic a change kind is published to.
func (p *Publisher) Topic(kind collection.ChangeKind) string {
	return p.topic + "/" + string(kind)
}

// Run publishes every change received until ctx is done or changes is
// closed. Publish failures are logged and counted; they do not stop Run.
func (p *Publisher) Run(ctx context.Context, changes <-chan collection.Change) error {
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if last != 0 && c.Revision > last+1 {
				p.log.Warn("collection changes missed",
					logger.Uint64("from_revision", last+1),
					logger.Uint64("to_revision", c.Revision-1))
			}
			last = c.Revision
			p.publish(ctx, c)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, c collection.Change) {
	payload, err := json.Marshal(NewEventDTO(c, p.now()))
	if err != nil {
		p.log.Error("failed to encode change", logger.Error(err))
		return
	}
	topic := p.Topic(c.Kind)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.log.Warn("failed to publish change",
			logger.String("topic", topic),
			logger.Uint64("revision", c.Revision),
			logger.Error(err))
		return
	}
	if p.metrics != nil {
		p.metrics.IncrementMessagesDelivered(string(c.Kind))
	}
	p.log.Debug("change published",
		logger.String("topic", topic),
		logger.Uint64("revision", c.Revision))
}
