// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
)

// errQueueFull marks events dropped because the delivery queue was behind.
var errQueueFull = errors.New("event queue full")

// queueDepth bounds buffered, not-yet-published events. The poller emits at
// most a handful of signals per cycle; a backlog this deep means the broker
// has been gone for a while and dropping is kinder than stalling.
const queueDepth = 64

// Sink delivers poller signals to NATS JetStream. Signal methods enqueue and
// return immediately; a single worker goroutine publishes in order, behind a
// circuit breaker, so a dead broker never stalls the poll flow.
type Sink struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
	embedded  *EmbeddedServer
	url       string
	prefix    string
	host      string
	logger    zerolog.Logger

	queue chan Event
	stop  chan struct{}
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSink connects a publisher to NATS, starting the embedded server first
// when cfg.Embedded is set. host tags every published envelope with the
// monitored device.
func NewSink(cfg config.EventsConfig, host string) (*Sink, error) {
	logger := logging.WithComponent("events")

	var embedded *EmbeddedServer
	url := cfg.URL
	if cfg.Embedded {
		es, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		embedded = es
		url = es.ClientURL()
	}

	pub, err := newPublisher(cfg, url, logger)
	if err != nil {
		if embedded != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			embedded.Shutdown(sctx)
			cancel()
		}
		return nil, err
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	s := &Sink{
		publisher: pub,
		breaker:   newPublishBreaker(logger),
		embedded:  embedded,
		url:       url,
		prefix:    prefix,
		host:      host,
		logger:    logger,
		queue:     make(chan Event, queueDepth),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()

	logger.Info().
		Str("url", url).
		Str("topic_prefix", prefix).
		Bool("embedded", cfg.Embedded).
		Msg("Event sink connected")
	return s, nil
}

// newPublisher builds the Watermill JetStream publisher. Streams are
// auto-provisioned per topic and message IDs are tracked so broker-side
// deduplication catches republished envelopes.
func newPublisher(cfg config.EventsConfig, url string, logger zerolog.Logger) (message.Publisher, error) {
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1 // unlimited
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait == 0 {
		reconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, watermill.NewStdLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// newPublishBreaker guards publishes so a dead broker costs one failed
// round trip per probe instead of a timeout per event.
func newPublishBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker[interface{}] {
	settings := gobreaker.Settings{
		Name:        "events-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event publish circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[interface{}](settings)
}

// SnapshotUpdated is a no-op: full snapshots are served by the API and would
// swamp the bus every poll cycle.
func (s *Sink) SnapshotUpdated(poller.View) {}

// CallStarted publishes a call.started event.
func (s *Sink) CallStarted(call poller.CallRecord) {
	s.enqueue(Event{Type: TopicCallStarted, Call: &call})
}

// CallEnded publishes a call.ended event.
func (s *Sink) CallEnded(call poller.CallRecord) {
	s.enqueue(Event{Type: TopicCallEnded, Call: &call})
}

// GroupDegraded publishes a group.degraded event.
func (s *Sink) GroupDegraded(health poller.GroupHealth) {
	s.enqueue(Event{Type: TopicGroupDegraded, Group: &health})
}

// DeviceRebooted publishes a device.rebooted event.
func (s *Sink) DeviceRebooted(host string) {
	s.enqueue(Event{Type: TopicDeviceRebooted, Host: host})
}

// Topic returns the full subject for a topic suffix.
func (s *Sink) Topic(suffix string) string {
	return s.prefix + "." + suffix
}

// ClientURL returns the NATS URL the sink publishes to: the embedded
// server's listen address, or the configured external one.
func (s *Sink) ClientURL() string {
	return s.url
}

func (s *Sink) enqueue(ev Event) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	ev.ID = uuid.New().String()
	if ev.Host == "" {
		ev.Host = s.host
	}
	ev.At = time.Now().UTC()

	select {
	case s.queue <- ev:
	default:
		metrics.RecordEventPublished(s.Topic(ev.Type), errQueueFull)
		s.logger.Warn().Str("type", ev.Type).Msg("Event dropped, queue full")
	}
}

func (s *Sink) run() {
	defer close(s.done)

	for {
		select {
		case ev := <-s.queue:
			s.publish(ev)
		case <-s.stop:
			// Deliver what was accepted before shutdown.
			for {
				select {
				case ev := <-s.queue:
					s.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) publish(ev Event) {
	topic := s.Topic(ev.Type)

	data, err := Marshal(&ev)
	if err != nil {
		metrics.RecordEventPublished(topic, err)
		s.logger.Error().Err(err).Str("type", ev.Type).Msg("Event marshal failed")
		return
	}

	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.ID)
	msg.Metadata.Set("type", ev.Type)
	msg.Metadata.Set("host", ev.Host)

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.publisher.Publish(topic, msg)
	})
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("Event publish failed")
		return
	}
	s.logger.Debug().Str("topic", topic).Str("event_id", ev.ID).Msg("Event published")
}

// Close drains accepted events, closes the publisher, and shuts down the
// embedded server if one was started. Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	err := s.publisher.Close()

	if s.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := s.embedded.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// Compile-time interface assertion
var _ poller.EventSink = (*Sink)(nil)
