package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/observekit/api-monitor-service/logging"
)

// KafkaQueueConfig wraps values used for creating a new KafkaQueue
type KafkaQueueConfig struct {
	BrokerURLs    []string
	ConsumerGroup string
	TopicPrefix   string
	Logger        *logging.ServiceLogger
}

// KafkaQueue is a Kafka backed Queue implementation for deployments
// that need job durability across service restarts. Each job type maps
// to its own topic under the configured prefix.
type KafkaQueue struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup
	topicPrefix   string

	subscriptions map[string]subscription
	mu            sync.RWMutex

	ready  chan bool
	cancel context.CancelFunc

	*logging.ServiceLogger
}

var _ Queue = (*KafkaQueue)(nil)
var _ sarama.ConsumerGroupHandler = (*KafkaQueue)(nil)

// NewKafkaQueue creates a new KafkaQueue using the provided config,
// returning the queue and error (if any)
func NewKafkaQueue(config KafkaQueueConfig) (*KafkaQueue, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	producer, err := sarama.NewSyncProducer(config.BrokerURLs, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.BrokerURLs, config.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return &KafkaQueue{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicPrefix:   config.TopicPrefix,
		subscriptions: make(map[string]subscription),
		ready:         make(chan bool),
		ServiceLogger: config.Logger,
	}, nil
}

// Enqueue publishes a job to the topic for its type
func (q *KafkaQueue) Enqueue(ctx context.Context, jobType string, payload []byte) error {
	_, _, err := q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic(jobType),
		Key:   sarama.StringEncoder(uuid.New().String()),
		Value: sarama.ByteEncoder(payload),
	})

	return err
}

// Subscribe registers the handler and retry policy for a job type,
// replacing any previous subscription for that type
func (q *KafkaQueue) Subscribe(jobType string, policy RetryPolicy, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subscriptions[jobType] = subscription{policy: policy, handler: handler}
}

// Run joins the consumer group for every subscribed topic, returning
// error (if any) from starting and an error channel which any errors
// encountered during running will be sent on
func (q *KafkaQueue) Run() (<-chan error, error) {
	errorChannel := make(chan error)

	q.mu.RLock()
	topics := make([]string, 0, len(q.subscriptions))
	for jobType := range q.subscriptions {
		topics = append(topics, q.topic(jobType))
	}
	q.mu.RUnlock()

	if len(topics) == 0 {
		return nil, fmt.Errorf("no job types subscribed before starting kafka queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	go func() {
		for err := range q.consumerGroup.Errors() {
			errorChannel <- err
		}
	}()

	go func() {
		for {
			if err := q.consumerGroup.Consume(ctx, topics, q); err != nil {
				q.Error().Err(err).Msg("error from kafka consumer group")
				errorChannel <- err
			}
			if ctx.Err() != nil {
				return
			}
			q.ready = make(chan bool)
		}
	}()

	<-q.ready
	q.Info().Msg("kafka queue consumers started")

	return errorChannel, nil
}

// Shutdown leaves the consumer group and closes the producer
func (q *KafkaQueue) Shutdown(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}

	if err := q.consumerGroup.Close(); err != nil {
		return err
	}

	return q.producer.Close()
}

// Setup implements sarama.ConsumerGroupHandler
func (q *KafkaQueue) Setup(sarama.ConsumerGroupSession) error {
	close(q.ready)
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler
func (q *KafkaQueue) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim dispatches each claimed message to the handler
// subscribed for the topic's job type
func (q *KafkaQueue) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			jobType := q.jobType(message.Topic)

			q.mu.RLock()
			sub, ok := q.subscriptions[jobType]
			q.mu.RUnlock()

			if !ok {
				q.Error().
					Str("topic", message.Topic).
					Msg("dropping message with no subscribed handler")
				session.MarkMessage(message, "")
				continue
			}

			job := Job{
				ID:         string(message.Key),
				Type:       jobType,
				Payload:    message.Value,
				EnqueuedAt: message.Timestamp,
			}

			if err := runWithRetry(session.Context(), sub, job, q.ServiceLogger); err != nil {
				// the job stays visible in the topic for inspection;
				// mark it so the partition is not blocked
				q.Error().
					Str("jobId", job.ID).
					Str("jobType", job.Type).
					Err(err).
					Msg("marking job consumed after exhausting queue retries")
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (q *KafkaQueue) topic(jobType string) string {
	return fmt.Sprintf("%s.%s", q.topicPrefix, jobType)
}

func (q *KafkaQueue) jobType(topic string) string {
	return strings.TrimPrefix(topic, q.topicPrefix+".")
}
