package telemetry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// eventQueueSize bounds the events waiting for a network sink.
const eventQueueSize = 256

// Logger is the logging surface the sinks need.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventPublisher is the MQTT surface MQTTSink needs.
// *mqtt.Client satisfies it.
type EventPublisher interface {
	Topics() mqtt.Topics
	PublishEvent(topic string, payload []byte) error
}

// MQTTSink publishes each event as JSON to {prefix}/events/{command}.
type MQTTSink struct {
	pub    EventPublisher
	logger Logger
	ch     chan jsonwp.CommandEvent

	startOnce sync.Once
	done      chan struct{}
}

// NewMQTTSink creates a sink. Call Run to start publishing.
func NewMQTTSink(pub EventPublisher, logger Logger) *MQTTSink {
	return &MQTTSink{
		pub:    pub,
		logger: logger,
		ch:     make(chan jsonwp.CommandEvent, eventQueueSize),
		done:   make(chan struct{}),
	}
}

// CommandDispatched queues ev. It never blocks; a full queue drops the event.
func (s *MQTTSink) CommandDispatched(_ context.Context, ev jsonwp.CommandEvent) {
	select {
	case s.ch <- ev:
	default:
		s.logger.Warn("mqtt event queue full, dropping event", "command", ev.Command)
	}
}

// Run publishes queued events until ctx is cancelled, then drains the queue.
func (s *MQTTSink) Run(ctx context.Context) {
	s.startOnce.Do(func() {
		defer close(s.done)
		for {
			select {
			case ev := <-s.ch:
				s.publish(ev)
			case <-ctx.Done():
				for {
					select {
					case ev := <-s.ch:
						s.publish(ev)
					default:
						return
					}
				}
			}
		}
	})
}

// Done is closed once Run has returned.
func (s *MQTTSink) Done() <-chan struct{} {
	return s.done
}

func (s *MQTTSink) publish(ev jsonwp.CommandEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding mqtt event", "command", ev.Command, "error", err)
		return
	}
	if err := s.pub.PublishEvent(s.pub.Topics().CommandEvent(ev.Command), payload); err != nil {
		s.logger.Warn("mqtt event publish failed", "command", ev.Command, "error", err)
	}
}
