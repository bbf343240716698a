package kafka

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/atomic"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
)

const (
	// topic retention and segment defaults applied when the producer creates
	// the topic itself rather than an operator.
	defaultRetentionMillis = "600000"
	defaultSegmentBytes    = "1073741824"

	// payloads longer than this are truncated in debug logs
	maxLoggedPayloadBytes = 80
)

// KafkaProducerConfig carries everything needed to build the async producer.
// ProducerConfigFromSettings derives one from the bridge settings.
type KafkaProducerConfig struct {
	BrokersURL            []string
	Topic                 string
	Partitions            int32
	ReplicationFactor     int16
	RetentionPeriodMillis string
	SegmentBytes          string
	FlushBytes            int
	FlushMessages         int
	FlushFrequency        time.Duration
}

// KafkaAsyncProducer wraps a sarama AsyncProducer and keeps track of the most
// recent delivery outcome so health checks can surface broker trouble.
type KafkaAsyncProducer struct {
	Config   KafkaProducerConfig
	Producer sarama.AsyncProducer

	logger   ulogger.Logger
	registry metrics.Registry

	closed         atomic.Bool
	publishChannel chan *Message

	statusMu   sync.Mutex
	lastStatus MessageStatus
}

var _ KafkaAsyncProducerI = (*KafkaAsyncProducer)(nil)

// ProducerConfigFromSettings builds a producer config from the kafka section
// of the bridge settings. Hosts without a port get the configured default
// port appended.
func ProducerConfigFromSettings(tSettings *settings.Settings) (KafkaProducerConfig, error) {
	brokers := make([]string, 0, 2)

	for _, host := range strings.Split(tSettings.Kafka.Hosts, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}

		if !strings.Contains(host, ":") {
			host = fmt.Sprintf("%s:%d", host, tSettings.Kafka.Port)
		}

		brokers = append(brokers, host)
	}

	if len(brokers) == 0 {
		return KafkaProducerConfig{}, errors.NewConfigurationError("no KAFKA_HOSTS setting found")
	}

	if tSettings.Kafka.CreditTopic == "" {
		return KafkaProducerConfig{}, errors.NewConfigurationError("no KAFKA_CREDIT_TOPIC setting found")
	}

	partitions := tSettings.Kafka.Partitions
	if partitions < 1 {
		partitions = 1
	}

	replication := tSettings.Kafka.ReplicationFactor
	if replication < 1 {
		replication = 1
	}

	return KafkaProducerConfig{
		BrokersURL:            brokers,
		Topic:                 tSettings.Kafka.CreditTopic,
		Partitions:            int32(partitions),
		ReplicationFactor:     int16(replication),
		RetentionPeriodMillis: defaultRetentionMillis,
		SegmentBytes:          defaultSegmentBytes,
		FlushBytes:            tSettings.Kafka.FlushBytes,
		FlushMessages:         tSettings.Kafka.FlushMessages,
		FlushFrequency:        tSettings.Kafka.FlushFrequency,
	}, nil
}

// NewKafkaAsyncProducer connects to the configured brokers, makes sure the
// topic exists and returns a producer ready to be started.
//
// Parameters:
//   - logger: Logger instance for producer events
//   - cfg: Producer configuration, usually from ProducerConfigFromSettings
//
// Returns:
//   - *KafkaAsyncProducer: Configured producer
//   - error: Configuration or broker connectivity error
func NewKafkaAsyncProducer(logger ulogger.Logger, cfg KafkaProducerConfig) (*KafkaAsyncProducer, error) {
	if len(cfg.BrokersURL) == 0 {
		return nil, errors.NewConfigurationError("no kafka brokers configured")
	}

	if cfg.Topic == "" {
		return nil, errors.NewConfigurationError("no kafka topic configured")
	}

	// sarama publishes its client metrics into this registry too, so broker
	// level rates and our delivery counters end up in one place.
	registry := metrics.NewRegistry()
	saramaCfg := buildSaramaConfig(cfg, registry)

	if err := ensureTopic(logger, cfg, saramaCfg); err != nil {
		return nil, err
	}

	producer, err := sarama.NewAsyncProducer(cfg.BrokersURL, saramaCfg)
	if err != nil {
		return nil, errors.NewServiceError("failed to create async producer for %v", cfg.BrokersURL, err)
	}

	logger.Infof("[AsyncProducer] connected to %v, publishing to %s", cfg.BrokersURL, cfg.Topic)

	return &KafkaAsyncProducer{
		Config:   cfg,
		Producer: producer,
		logger:   logger,
		registry: registry,
	}, nil
}

func buildSaramaConfig(cfg KafkaProducerConfig, registry metrics.Registry) *sarama.Config {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Flush.Bytes = cfg.FlushBytes
	saramaCfg.Producer.Flush.Messages = cfg.FlushMessages
	saramaCfg.Producer.Flush.Frequency = cfg.FlushFrequency

	if registry != nil {
		saramaCfg.MetricRegistry = registry
	}

	return saramaCfg
}

func ensureTopic(logger ulogger.Logger, cfg KafkaProducerConfig, saramaCfg *sarama.Config) error {
	admin, err := sarama.NewClusterAdmin(cfg.BrokersURL, saramaCfg)
	if err != nil {
		return errors.NewServiceError("failed to connect to kafka brokers %v", cfg.BrokersURL, err)
	}

	defer func() {
		_ = admin.Close()
	}()

	retention := cfg.RetentionPeriodMillis
	if retention == "" {
		retention = defaultRetentionMillis
	}

	segmentBytes := cfg.SegmentBytes
	if segmentBytes == "" {
		segmentBytes = defaultSegmentBytes
	}

	detail := &sarama.TopicDetail{
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ConfigEntries: map[string]*string{
			"retention.ms":        &retention,
			"delete.retention.ms": &retention,
			"segment.ms":          &retention,
			"segment.bytes":       &segmentBytes,
		},
	}

	if err = admin.CreateTopic(cfg.Topic, detail, false); err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return errors.NewServiceError("failed to create topic %s", cfg.Topic, err)
	}

	logger.Infof("[AsyncProducer] topic %s ready on %v", cfg.Topic, cfg.BrokersURL)

	return nil
}

// Start consumes messages from ch and forwards them to the broker. It blocks
// until ctx is cancelled or ch is closed, then shuts the producer down and
// waits for the delivery handlers to drain.
func (p *KafkaAsyncProducer) Start(ctx context.Context, ch chan *Message) {
	if p == nil || p.Producer == nil {
		return
	}

	p.publishChannel = ch

	published := metrics.GetOrRegisterCounter("messages.published", p.registry)
	delivered := metrics.GetOrRegisterCounter("messages.delivered", p.registry)
	failed := metrics.GetOrRegisterCounter("messages.failed", p.registry)

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for msg := range p.Producer.Successes() {
			delivered.Inc(1)
			p.setLastStatus(true, nil)
			p.logger.Debugf("[AsyncProducer] delivered to %s: %s", msg.Topic, p.decodeKeyOrValue(msg.Value))
		}
	}()

	go func() {
		defer wg.Done()

		for producerErr := range p.Producer.Errors() {
			failed.Inc(1)
			p.setLastStatus(false, producerErr.Err)
			p.logger.Errorf("[AsyncProducer] delivery to %s failed: %v", producerErr.Msg.Topic, producerErr.Err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infof("[AsyncProducer] context done, shutting down producer for %s", p.Config.Topic)
			_ = p.Stop()
			wg.Wait()

			return
		case msg, ok := <-ch:
			if !ok {
				p.logger.Infof("[AsyncProducer] publish channel closed, shutting down producer for %s", p.Config.Topic)
				_ = p.Stop()
				wg.Wait()

				return
			}

			if msg == nil || p.closed.Load() {
				continue
			}

			producerMsg := &sarama.ProducerMessage{
				Topic: p.Config.Topic,
				Value: sarama.ByteEncoder(msg.Value),
			}
			if len(msg.Key) > 0 {
				producerMsg.Key = sarama.ByteEncoder(msg.Key)
			}

			p.Producer.Input() <- producerMsg

			published.Inc(1)
		}
	}
}

// Publish queues a message on the channel Start is draining. It is a no-op
// before Start has been called.
func (p *KafkaAsyncProducer) Publish(msg *Message) {
	if p == nil || p.publishChannel == nil || msg == nil {
		return
	}

	p.publishChannel <- msg
}

// Stop closes the underlying producer. It is safe on a nil receiver and safe
// to call more than once.
func (p *KafkaAsyncProducer) Stop() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	if p.Producer != nil {
		p.Producer.AsyncClose()
	}

	return nil
}

// BrokersURL returns the broker addresses the producer was configured with.
func (p *KafkaAsyncProducer) BrokersURL() []string {
	if p == nil {
		return nil
	}

	return p.Config.BrokersURL
}

// LastMessageStatus returns the outcome of the most recent delivery attempt.
func (p *KafkaAsyncProducer) LastMessageStatus() MessageStatus {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	return p.lastStatus
}

// Health reports producer health. Liveness only confirms the process is
// responsive, readiness additionally requires a running producer whose most
// recent delivery did not fail.
func (p *KafkaAsyncProducer) Health(_ context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if p == nil || p.Producer == nil || p.closed.Load() {
		return http.StatusServiceUnavailable, "kafka producer not running", errors.NewServiceUnavailableError("kafka producer not running")
	}

	if status := p.LastMessageStatus(); !status.Success && status.Error != nil {
		return http.StatusServiceUnavailable, fmt.Sprintf("last delivery failed at %s", status.Time.Format(time.RFC3339)), status.Error
	}

	return http.StatusOK, "OK", nil
}

func (p *KafkaAsyncProducer) setLastStatus(success bool, err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	p.lastStatus = MessageStatus{
		Success: success,
		Error:   err,
		Time:    time.Now(),
	}
}

// decodeKeyOrValue renders a message key or value for debug logging,
// truncating anything longer than maxLoggedPayloadBytes.
func (p *KafkaAsyncProducer) decodeKeyOrValue(encoder sarama.Encoder) string {
	if encoder == nil {
		return ""
	}

	b, err := encoder.Encode()
	if err != nil {
		return ""
	}

	if len(b) > maxLoggedPayloadBytes {
		return hex.EncodeToString(b[:maxLoggedPayloadBytes]) + "... (truncated)"
	}

	return hex.EncodeToString(b)
}
