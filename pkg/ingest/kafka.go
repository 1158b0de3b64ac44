// Package ingest pulls line-delimited JSON messages out of Kafka partitions and
// turns them into arrow records the writer can consume.
package ingest

import (
	"bytes"
	"context"
	"crypto/tls"
	"time"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/parquetry/pkg/metrics"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.uber.org/zap"
)

// KafkaConfig contains the broker connection settings for a KafkaHandle.
type KafkaConfig struct {
	Brokers               []string `yaml:"brokers" json:"brokers"`
	ClientID              string   `yaml:"client_id" json:"client_id"`
	SecurityProtocol      string   `yaml:"security_protocol" json:"security_protocol"`
	SASLMechanism         string   `yaml:"sasl_mechanism" json:"sasl_mechanism"`
	SASLUsername          string   `yaml:"sasl_username" json:"sasl_username"`
	SASLPassword          string   `yaml:"sasl_password" json:"sasl_password"`
	TLSInsecureSkipVerify bool     `yaml:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`

	// Producer settings
	ProducerAcks        string `yaml:"producer_acks" json:"producer_acks"` // all, 1, 0
	ProducerRetries     int    `yaml:"producer_retries" json:"producer_retries"`
	ProducerCompression string `yaml:"producer_compression" json:"producer_compression"` // none, gzip, snappy, lz4, zstd

	// ConsumerGroupID names the group offsets are committed under.
	ConsumerGroupID string `yaml:"consumer_group_id" json:"consumer_group_id"`

	// Delimiter separates JSON records inside and across message values.
	// Empty means a newline.
	Delimiter string `yaml:"delimiter" json:"delimiter"`
}

// DefaultDelimiter separates records when KafkaConfig.Delimiter is empty.
const DefaultDelimiter = "\n"

const redacted = "******"

// offsetSource answers watermark queries. sarama.Client satisfies it.
type offsetSource interface {
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

// committer stores and reports the next offset to consume for a partition.
type committer interface {
	Commit(topic string, partition int32, offset int64) error
	Committed(topic string, partition int32) (int64, error)
	Close() error
}

// KafkaHandle reads ranges of a partition into arrow records and produces
// messages back to the cluster. A handle is safe for use by one goroutine.
type KafkaHandle struct {
	consumer  sarama.Consumer
	producer  sarama.SyncProducer
	offsets   offsetSource
	committer committer
	client    sarama.Client
	logger    *zap.Logger
	tracker   *metrics.ThroughputTracker
	cfg       KafkaConfig
	delim     []byte
}

// NewKafkaHandle connects to the brokers in cfg.
func NewKafkaHandle(cfg KafkaConfig, logger *zap.Logger) (*KafkaHandle, error) {
	if len(cfg.Brokers) == 0 {
		return nil, pqerrors.New(pqerrors.ErrorTypeConfig, "no kafka brokers configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := sarama.NewClient(cfg.Brokers, buildSaramaConfig(cfg))
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to create kafka client").
			WithDetail("brokers", cfg.Brokers)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to create kafka consumer")
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to create kafka producer")
	}

	var cm committer
	if cfg.ConsumerGroupID != "" {
		om, err := sarama.NewOffsetManagerFromClient(cfg.ConsumerGroupID, client)
		if err != nil {
			_ = producer.Close()
			_ = consumer.Close()
			_ = client.Close()
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to create kafka offset manager").
				WithDetail("group", cfg.ConsumerGroupID)
		}
		cm = newGroupCommitter(om)
	}

	h := newKafkaHandle(consumer, producer, client, cm, logger)
	h.client = client
	h.cfg = cfg
	if cfg.Delimiter != "" {
		h.delim = []byte(cfg.Delimiter)
	}
	return h, nil
}

func newKafkaHandle(consumer sarama.Consumer, producer sarama.SyncProducer, offsets offsetSource, cm committer, logger *zap.Logger) *KafkaHandle {
	return &KafkaHandle{
		consumer:  consumer,
		producer:  producer,
		offsets:   offsets,
		committer: cm,
		logger:    logger,
		tracker:   metrics.NewThroughputTracker(metrics.Default(), "kafka"),
		delim:     []byte(DefaultDelimiter),
	}
}

// WithMetrics replaces the collector ingest throughput is reported to.
func (h *KafkaHandle) WithMetrics(c *metrics.Collector) *KafkaHandle {
	h.tracker = metrics.NewThroughputTracker(c, "kafka")
	return h
}

// WithDelimiter sets the record delimiter; an empty delimiter keeps the
// current one.
func (h *KafkaHandle) WithDelimiter(delim string) *KafkaHandle {
	if delim != "" {
		h.delim = []byte(delim)
		h.cfg.Delimiter = delim
	}
	return h
}

// DumpConfigs returns the settings the handle was created with. Credentials
// are replaced so the result can be logged.
func (h *KafkaHandle) DumpConfigs() KafkaConfig {
	out := h.cfg
	out.Brokers = append([]string(nil), h.cfg.Brokers...)
	if out.SASLUsername != "" {
		out.SASLUsername = redacted
	}
	if out.SASLPassword != "" {
		out.SASLPassword = redacted
	}
	if out.Delimiter == "" {
		out.Delimiter = string(h.delim)
	}
	return out
}

// buildSaramaConfig builds Sarama configuration from KafkaConfig
func buildSaramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}

	switch cfg.ProducerAcks {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}
	config.Producer.Retry.Max = cfg.ProducerRetries
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch cfg.ProducerCompression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
		config.Version = sarama.V2_1_0_0
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	if cfg.SecurityProtocol == "SASL_SSL" || cfg.SecurityProtocol == "SSL" {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		}
	}

	if cfg.SASLMechanism != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.SASLUsername
		config.Net.SASL.Password = cfg.SASLPassword

		switch cfg.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		}
	}

	return config
}

// Metadata lists every topic with its partitions.
func (h *KafkaHandle) Metadata() (map[string][]int32, error) {
	topics, err := h.consumer.Topics()
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to list topics")
	}
	out := make(map[string][]int32, len(topics))
	for _, t := range topics {
		parts, err := h.consumer.Partitions(t)
		if err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to list partitions").
				WithDetail("topic", t)
		}
		out[t] = parts
	}
	return out, nil
}

// WatermarkOffsets returns the oldest available offset and the offset the
// next produced message will get.
func (h *KafkaHandle) WatermarkOffsets(topic string, partition int32) (low, high int64, err error) {
	if h.offsets == nil {
		return 0, 0, pqerrors.New(pqerrors.ErrorTypeUsage, "handle has no offset source")
	}
	low, err = h.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to query low watermark").
			WithDetail("topic", topic).
			WithDetail("partition", partition)
	}
	high, err = h.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to query high watermark").
			WithDetail("topic", topic).
			WithDetail("partition", partition)
	}
	return low, high, nil
}

// ReadTable consumes offsets [start, end) of a partition and parses the
// message values as delimited JSON records. A negative start means the low
// watermark, a negative end the high watermark. Reading stops early when
// timeout elapses or ctx is done; whatever arrived by then is returned along
// with the offset to resume from. A nil record with a nil error means no
// messages arrived.
//
// The caller owns the returned record and must Release it.
func (h *KafkaHandle) ReadTable(ctx context.Context, topic string, partition int32, start, end int64, timeout time.Duration) (arrow.Record, int64, error) {
	if start < 0 || end < 0 {
		low, high, err := h.WatermarkOffsets(topic, partition)
		if err != nil {
			return nil, 0, err
		}
		if start < 0 {
			start = low
		}
		if end < 0 {
			end = high
		}
	}
	if end <= start {
		return nil, start, nil
	}

	lines, last, err := h.consume(ctx, topic, partition, start, end, timeout)
	if err != nil {
		return nil, start, err
	}
	next := last + 1
	if len(lines) == 0 {
		return nil, next, nil
	}
	h.logger.Debug("consumed partition range",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("start", start),
		zap.Int64("next", next),
		zap.Int("records", len(lines)))
	h.tracker.Increment(int64(len(lines)))

	rec, err := parseLines(lines)
	if err != nil {
		return nil, start, err
	}
	return rec, next, nil
}

func (h *KafkaHandle) consume(ctx context.Context, topic string, partition int32, start, end int64, timeout time.Duration) ([][]byte, int64, error) {
	pc, err := h.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return nil, 0, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to consume partition").
			WithDetail("topic", topic).
			WithDetail("partition", partition).
			WithDetail("offset", start)
	}
	defer func() {
		if cerr := pc.Close(); cerr != nil {
			h.logger.Warn("partition consumer close failed", zap.Error(cerr))
		}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var lines [][]byte
	last := start - 1
	for last < end-1 {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return lines, last, nil
			}
			if msg.Offset >= end {
				return lines, end - 1, nil
			}
			last = msg.Offset
			lines = appendRecords(lines, msg.Value, h.delim)
		case cerr, ok := <-pc.Errors():
			if !ok {
				return lines, last, nil
			}
			return nil, 0, pqerrors.Wrap(cerr.Err, pqerrors.ErrorTypeIO, "partition consumer failed").
				WithDetail("topic", topic).
				WithDetail("partition", partition)
		case <-deadline:
			return lines, last, nil
		case <-ctx.Done():
			return lines, last, nil
		}
	}
	return lines, last, nil
}

// appendRecords splits one message value on delim and keeps the non-blank
// records.
func appendRecords(lines [][]byte, value, delim []byte) [][]byte {
	for _, v := range bytes.Split(value, delim) {
		if v = bytes.TrimSpace(v); len(v) > 0 {
			lines = append(lines, v)
		}
	}
	return lines
}

// parseLines infers a schema from the JSON objects and decodes them with
// arrow's JSON reader into a single record.
func parseLines(lines [][]byte) (arrow.Record, error) {
	schema, err := InferSchema(lines)
	if err != nil {
		return nil, err
	}
	body := bytes.Join(lines, []byte{'\n'})
	rdr := array.NewJSONReader(bytes.NewReader(body), schema, array.WithChunk(-1))
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeUsage, "failed to decode json messages")
		}
		return nil, nil
	}
	rec := rdr.Record()
	rec.Retain()
	if err := rdr.Err(); err != nil {
		rec.Release()
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeUsage, "failed to decode json messages")
	}
	return rec, nil
}

// Commit records offset as the next offset to consume for the partition.
func (h *KafkaHandle) Commit(topic string, partition int32, offset int64) error {
	if h.committer == nil {
		return pqerrors.New(pqerrors.ErrorTypeUsage, "no consumer group configured")
	}
	if err := h.committer.Commit(topic, partition, offset); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to commit offset").
			WithDetail("topic", topic).
			WithDetail("partition", partition).
			WithDetail("offset", offset)
	}
	return nil
}

// Committed returns the next offset the consumer group will read from the
// partition. It is negative when the group has not committed one yet.
func (h *KafkaHandle) Committed(topic string, partition int32) (int64, error) {
	if h.committer == nil {
		return 0, pqerrors.New(pqerrors.ErrorTypeUsage, "no consumer group configured")
	}
	offset, err := h.committer.Committed(topic, partition)
	if err != nil {
		return 0, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to fetch committed offset").
			WithDetail("topic", topic).
			WithDetail("partition", partition)
	}
	return offset, nil
}

// Produce sends one message and returns where it landed.
func (h *KafkaHandle) Produce(ctx context.Context, topic string, key, value []byte) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	partition, offset, err := h.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to produce message").
			WithDetail("topic", topic)
	}
	return partition, offset, nil
}

// MessagesPerSecond reports the consume rate since the previous call.
func (h *KafkaHandle) MessagesPerSecond() float64 {
	return h.tracker.GetAndReset()
}

// Close releases the producer, consumer and client.
func (h *KafkaHandle) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if h.committer != nil {
		keep(h.committer.Close())
	}
	if h.producer != nil {
		keep(h.producer.Close())
	}
	if h.consumer != nil {
		keep(h.consumer.Close())
	}
	if h.client != nil && !h.client.Closed() {
		keep(h.client.Close())
	}
	if first != nil {
		return pqerrors.Wrap(first, pqerrors.ErrorTypeIO, "failed to close kafka handle")
	}
	return nil
}

// groupCommitter commits through a consumer group offset manager.
type groupCommitter struct {
	om         sarama.OffsetManager
	partitions map[string]map[int32]sarama.PartitionOffsetManager
}

func newGroupCommitter(om sarama.OffsetManager) *groupCommitter {
	return &groupCommitter{om: om, partitions: make(map[string]map[int32]sarama.PartitionOffsetManager)}
}

// manage returns the cached partition offset manager, creating it on first use.
func (g *groupCommitter) manage(topic string, partition int32) (sarama.PartitionOffsetManager, error) {
	byPart := g.partitions[topic]
	if byPart == nil {
		byPart = make(map[int32]sarama.PartitionOffsetManager)
		g.partitions[topic] = byPart
	}
	pom := byPart[partition]
	if pom == nil {
		var err error
		if pom, err = g.om.ManagePartition(topic, partition); err != nil {
			return nil, err
		}
		byPart[partition] = pom
	}
	return pom, nil
}

func (g *groupCommitter) Commit(topic string, partition int32, offset int64) error {
	pom, err := g.manage(topic, partition)
	if err != nil {
		return err
	}
	pom.MarkOffset(offset, "")
	g.om.Commit()
	return nil
}

func (g *groupCommitter) Committed(topic string, partition int32) (int64, error) {
	pom, err := g.manage(topic, partition)
	if err != nil {
		return 0, err
	}
	offset, _ := pom.NextOffset()
	return offset, nil
}

func (g *groupCommitter) Close() error {
	for _, byPart := range g.partitions {
		for _, pom := range byPart {
			pom.AsyncClose()
		}
	}
	return g.om.Close()
}
