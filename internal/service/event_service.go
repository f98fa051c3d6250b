package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/observability"
)

const eventBufferSize = 16

// EventService fans stored-evaluation events out to SSE subscribers on this
// node and mirrors them across nodes through Redis pub/sub and NATS. Both
// brokers are optional; with neither configured the feed is node local.
type EventService interface {
	PublishStored(ctx context.Context, event dto.EvaluationEvent)
	Subscribe() (<-chan dto.EvaluationEvent, func())
	Start(ctx context.Context)
}

type eventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *eventBroker
	nodeID       string
}

// eventEnvelope wraps an event with its originating node so each node can
// drop its own broker echoes.
type eventEnvelope struct {
	Source string              `json:"source"`
	Event  dto.EvaluationEvent `json:"event"`
	SentAt time.Time           `json:"sent_at"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.EvaluationEvent]struct{}
}

// NewEventService constructs the fan-out service. The channel base names both
// broker channels: "<base>:evaluations" on Redis and "<base>.evaluations" on
// NATS.
func NewEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":evaluations"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".evaluations"
	}

	return &eventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_service").Logger(),
		broker: &eventBroker{
			subscribers: make(map[chan dto.EvaluationEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *eventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// PublishStored delivers the event to local subscribers and mirrors it to the
// configured brokers. Broker failures are logged, never propagated: the
// evaluation is already stored and the feed is best effort.
func (s *eventService) PublishStored(ctx context.Context, event dto.EvaluationEvent) {
	observability.EvaluationEvents().WithLabelValues("local").Inc()
	s.broker.broadcast(event)

	if err := s.mirror(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mirror evaluation event to brokers")
	}
}

// Subscribe registers a feed consumer. The returned cleanup must be called
// when the consumer goes away; it closes the channel.
func (s *eventService) Subscribe() (<-chan dto.EvaluationEvent, func()) {
	channel := make(chan dto.EvaluationEvent, eventBufferSize)

	s.broker.subscribe(channel)
	observability.SSEClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(channel)
		observability.SSEClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *eventService) mirror(ctx context.Context, event dto.EvaluationEvent) error {
	if s.redis == nil && s.nats == nil {
		return nil
	}

	envelope := eventEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *eventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("evaluation event redis subscription closed")
			return
		}
		s.handleRemote([]byte(msg.Payload))
	}
}

func (s *eventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "ndd-evaluations", func(msg *nats.Msg) {
		s.handleRemote(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats evaluation subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain evaluation nats subscription")
		}
	}()
}

func (s *eventService) handleRemote(payload []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid evaluation event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	observability.EvaluationEvents().WithLabelValues("remote").Inc()
	s.broker.broadcast(envelope.Event)
}

func (b *eventBroker) subscribe(ch chan dto.EvaluationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(ch chan dto.EvaluationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// broadcast delivers to every subscriber without blocking: a consumer that
// stopped draining its channel misses events instead of stalling the feed.
func (b *eventBroker) broadcast(event dto.EvaluationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
