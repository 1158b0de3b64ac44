package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/parquetry/pkg/metrics"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeOffsets struct {
	low, high int64
	err       error
}

func (f fakeOffsets) GetOffset(_ string, _ int32, t int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if t == sarama.OffsetOldest {
		return f.low, nil
	}
	return f.high, nil
}

type fakeCommitter struct {
	commits map[int32]int64
	closed  bool
}

func (f *fakeCommitter) Commit(_ string, partition int32, offset int64) error {
	if f.commits == nil {
		f.commits = make(map[int32]int64)
	}
	f.commits[partition] = offset
	return nil
}

func (f *fakeCommitter) Committed(_ string, partition int32) (int64, error) {
	if off, ok := f.commits[partition]; ok {
		return off, nil
	}
	return -1, nil
}

func (f *fakeCommitter) Close() error {
	f.closed = true
	return nil
}

func newTestHandle(t *testing.T, consumer sarama.Consumer, producer sarama.SyncProducer, offsets offsetSource, cm committer) *KafkaHandle {
	t.Helper()
	h := newKafkaHandle(consumer, producer, offsets, cm, zaptest.NewLogger(t))
	return h.WithMetrics(metrics.NewCollector(prometheus.NewRegistry()))
}

func yield(pc *mocks.PartitionConsumer, values ...string) {
	for _, v := range values {
		pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte(v)})
	}
}

func TestReadTableRange(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("events", 0, 0)
	yield(pc,
		`{"id": 1, "name": "a", "score": 1.5}`,
		`{"id": 2, "name": null, "score": 2}`,
		`{"id": 3, "tags": ["x", "y"]}`,
		`{"id": 4, "name": "late"}`,
	)

	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{low: 0, high: 4}, nil)
	rec, next, err := h.ReadTable(context.Background(), "events", 0, 0, 3, time.Second)
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer rec.Release()

	assert.Equal(t, int64(3), next)
	assert.Equal(t, int64(3), rec.NumRows())
	schema := rec.Schema()
	require.Equal(t, 4, schema.NumFields())
	assert.Equal(t, []string{"id", "name", "score", "tags"},
		[]string{schema.Field(0).Name, schema.Field(1).Name, schema.Field(2).Name, schema.Field(3).Name})
	assert.Equal(t, arrow.INT64, schema.Field(0).Type.ID())
	assert.Equal(t, arrow.STRING, schema.Field(1).Type.ID())
	assert.Equal(t, arrow.FLOAT64, schema.Field(2).Type.ID())
	assert.Equal(t, arrow.LIST, schema.Field(3).Type.ID())

	ids := rec.Column(0).(*array.Int64)
	assert.Equal(t, []int64{1, 2, 3}, ids.Int64Values())
	names := rec.Column(1).(*array.String)
	assert.Equal(t, "a", names.Value(0))
	assert.True(t, names.IsNull(1))
	assert.True(t, names.IsNull(2))
	scores := rec.Column(2).(*array.Float64)
	assert.Equal(t, 2.0, scores.Value(1))

	require.NoError(t, h.Close())
}

func TestReadTableWatermarkDefaults(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("events", 1, 0)
	yield(pc, `{"v": true}`, `{"v": false}`)

	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{low: 0, high: 2}, nil)
	rec, next, err := h.ReadTable(context.Background(), "events", 1, -1, -1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
	require.NotNil(t, rec)
	defer rec.Release()

	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, arrow.BOOL, rec.Schema().Field(0).Type.ID())
	require.NoError(t, h.Close())
}

func TestReadTableEmptyRange(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{low: 5, high: 5}, nil)

	rec, next, err := h.ReadTable(context.Background(), "events", 0, -1, -1, time.Second)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int64(5), next)
	require.NoError(t, h.Close())
}

func TestReadTableTimeoutReturnsPartial(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("events", 0, 0)
	yield(pc, `{"n": 1}`)

	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)
	rec, next, err := h.ReadTable(context.Background(), "events", 0, 0, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
	require.NotNil(t, rec)
	defer rec.Release()
	assert.Equal(t, int64(1), rec.NumRows())
	require.NoError(t, h.Close())
}

func TestReadTableConsumerError(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("events", 0, 0)
	pc.YieldError(sarama.ErrOffsetOutOfRange)

	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)
	_, _, err := h.ReadTable(context.Background(), "events", 0, 0, 3, time.Second)
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeIO))
	assert.ErrorIs(t, err, sarama.ErrOffsetOutOfRange)
	require.NoError(t, h.Close())
}

func TestWatermarkOffsetsError(t *testing.T) {
	h := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{err: errors.New("broker down")}, nil)
	_, _, err := h.WatermarkOffsets("events", 0)
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeIO))
	require.NoError(t, h.Close())
}

func TestCommit(t *testing.T) {
	cm := &fakeCommitter{}
	h := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{}, cm)
	require.NoError(t, h.Commit("events", 2, 41))
	assert.Equal(t, int64(41), cm.commits[2])
	require.NoError(t, h.Close())
	assert.True(t, cm.closed)

	noGroup := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)
	assert.True(t, pqerrors.IsType(noGroup.Commit("events", 0, 1), pqerrors.ErrorTypeUsage))
	require.NoError(t, noGroup.Close())
}

func TestCommitted(t *testing.T) {
	cm := &fakeCommitter{}
	h := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{}, cm)
	off, err := h.Committed("events", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), off)

	require.NoError(t, h.Commit("events", 1, 17))
	off, err = h.Committed("events", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(17), off)
	require.NoError(t, h.Close())

	noGroup := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)
	_, err = noGroup.Committed("events", 0)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeUsage))
	require.NoError(t, noGroup.Close())
}

func TestGroupCommitterAgainstBroker(t *testing.T) {
	broker := sarama.NewMockBroker(t, 1)
	defer broker.Close()
	broker.SetHandlerByMap(map[string]sarama.MockResponse{
		"MetadataRequest": sarama.NewMockMetadataResponse(t).
			SetBroker(broker.Addr(), broker.BrokerID()).
			SetLeader("events", 0, broker.BrokerID()),
		"FindCoordinatorRequest": sarama.NewMockFindCoordinatorResponse(t).
			SetCoordinator(sarama.CoordinatorGroup, "lake", broker),
		"OffsetFetchRequest": sarama.NewMockOffsetFetchResponse(t).
			SetOffset("lake", "events", 0, 42, "", sarama.ErrNoError),
		"OffsetCommitRequest": sarama.NewMockOffsetCommitResponse(t).
			SetError("lake", "events", 0, sarama.ErrNoError),
	})

	h, err := NewKafkaHandle(KafkaConfig{Brokers: []string{broker.Addr()}, ConsumerGroupID: "lake"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	off, err := h.Committed("events", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), off)

	require.NoError(t, h.Commit("events", 0, 50))
	off, err = h.Committed("events", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), off)
	require.NoError(t, h.Close())
}

func TestDumpConfigsRedactsSecrets(t *testing.T) {
	cfg := KafkaConfig{
		Brokers:         []string{"a:9092", "b:9092"},
		ClientID:        "parquetry",
		SASLMechanism:   "PLAIN",
		SASLUsername:    "svc",
		SASLPassword:    "hunter2",
		ConsumerGroupID: "lake",
	}
	h := newTestHandle(t, mocks.NewConsumer(t, nil), mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)
	h.cfg = cfg

	dump := h.DumpConfigs()
	assert.Equal(t, "******", dump.SASLPassword)
	assert.Equal(t, "******", dump.SASLUsername)
	assert.Equal(t, cfg.Brokers, dump.Brokers)
	assert.Equal(t, "PLAIN", dump.SASLMechanism)
	assert.Equal(t, "lake", dump.ConsumerGroupID)
	assert.Equal(t, DefaultDelimiter, dump.Delimiter)

	dump.Brokers[0] = "changed"
	assert.Equal(t, "a:9092", h.cfg.Brokers[0])
	assert.Equal(t, "hunter2", h.cfg.SASLPassword)

	h.cfg.SASLPassword = ""
	assert.Empty(t, h.DumpConfigs().SASLPassword)
	require.NoError(t, h.Close())
}

func TestReadTableDelimiter(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("events", 0, 0)
	yield(pc,
		`{"id": 1}|{"id": 2}|`,
		` | {"id": 3}`,
	)

	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{low: 0, high: 2}, nil).WithDelimiter("|")
	assert.Equal(t, "|", h.DumpConfigs().Delimiter)
	rec, next, err := h.ReadTable(context.Background(), "events", 0, -1, -1, time.Second)
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer rec.Release()

	assert.Equal(t, int64(2), next)
	assert.Equal(t, []int64{1, 2, 3}, rec.Column(0).(*array.Int64).Int64Values())
	require.NoError(t, h.Close())
}

func TestAppendRecords(t *testing.T) {
	tests := []struct {
		name  string
		value string
		delim string
		want  []string
	}{
		{"newline", "{\"a\":1}\n{\"a\":2}\n", "\n", []string{`{"a":1}`, `{"a":2}`}},
		{"single", `  {"a":1}  `, "\n", []string{`{"a":1}`}},
		{"blank", " \n \n", "\n", nil},
		{"multi byte", `{"a":1}<>{"a":2}`, "<>", []string{`{"a":1}`, `{"a":2}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, l := range appendRecords(nil, []byte(tt.value), []byte(tt.delim)) {
				got = append(got, string(l))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProduce(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		v, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		if string(v) != `{"id":1}` {
			return errors.New("unexpected value " + string(v))
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	h := newTestHandle(t, mocks.NewConsumer(t, nil), producer, fakeOffsets{}, nil)
	ctx := context.Background()
	_, off, err := h.Produce(ctx, "events", nil, []byte(`{"id":1}`))
	require.NoError(t, err)
	_, next, err := h.Produce(ctx, "events", []byte("k"), []byte(`{"id":2}`))
	require.NoError(t, err)
	assert.Equal(t, off+1, next)
	require.NoError(t, h.Close())
}

func TestMetadata(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{
		"events": {0, 1, 2},
		"audit":  {0},
	})
	h := newTestHandle(t, consumer, mocks.NewSyncProducer(t, nil), fakeOffsets{}, nil)

	md, err := h.Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string][]int32{"events": {0, 1, 2}, "audit": {0}}, md)
	require.NoError(t, h.Close())
}

func TestNewKafkaHandleRequiresBrokers(t *testing.T) {
	_, err := NewKafkaHandle(KafkaConfig{}, nil)
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeConfig))
}

func TestBuildSaramaConfig(t *testing.T) {
	cfg := buildSaramaConfig(KafkaConfig{
		ProducerAcks:        "1",
		ProducerCompression: "zstd",
		SecurityProtocol:    "SASL_SSL",
		SASLMechanism:       "SCRAM-SHA-512",
		SASLUsername:        "u",
	})
	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionZSTD, cfg.Producer.Compression)
	assert.True(t, cfg.Net.TLS.Enable)
	assert.True(t, cfg.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), cfg.Net.SASL.Mechanism)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
}
