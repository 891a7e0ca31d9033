//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/chart-consensus/internal/adapter/kafka"
	"github.com/couchcryptid/chart-consensus/internal/adapter/postgres"
	"github.com/couchcryptid/chart-consensus/internal/config"
	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
	"github.com/couchcryptid/chart-consensus/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
	mockJobID       = "ben-nevis-240426"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Result  domain.JobResult
	Key     string
	Headers map[string]string
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var res domain.JobResult
	require.NoError(t, json.Unmarshal(msg.Value, &res), "unmarshal sink message")

	return resultMessage{Result: res, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newEngine(metrics *observability.Metrics) *pipeline.Engine {
	return pipeline.NewEngine(domain.NewReconciler(domain.WithWorkers(4)), discardLogger(), metrics)
}

func publish(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// assertMockResult checks the consensus of the mock job: run 3's hour 5 wind
// speed is outvoted, and of the two flagged charts only wind has a repair
// series in the envelope.
func assertMockResult(t *testing.T, res domain.JobResult) {
	t.Helper()

	assert.Equal(t, mockJobID, res.JobID)
	assert.Len(t, res.Rows, 3*3*domain.HoursPerSeries)
	assert.Equal(t, 3, res.Report.RunCount)
	assert.Len(t, res.Report.Disagreements, 2)
	require.Len(t, res.Report.FlaggedCharts, 2)
	require.NotNil(t, res.Report.Repair)
	assert.Equal(t, map[domain.RepairStatus]int{
		domain.RepairPatched:     1,
		domain.RepairUnavailable: 1,
	}, res.Report.RepairCounts())

	for _, row := range res.Rows {
		assert.Equal(t, "Ben Nevis (1345 metres)", row.Location)
		if row.Key.MeasurementType == domain.TypeSpeed && row.Key.HourIndex == 5 {
			v, ok := row.Value.Float()
			require.True(t, ok)
			assert.InDelta(t, 15.0, v, 1e-9)
		}
	}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (extractor)
// and kafka.Writer (loader) round-trip a job through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	publish(ctx, t, broker, kafkago.Message{Key: []byte(mockJobID), Value: loadMockData(t)})

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, []byte(mockJobID), batch[0].Key)
	assert.Equal(t, testSourceTopic, batch[0].Topic)
	require.NotNil(t, batch[0].Commit)

	out, err := pipeline.NewTransformer(newEngine(observability.NewMetricsForTesting())).Transform(ctx, batch[0])
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))
	require.NoError(t, batch[0].Commit(ctx))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, mockJobID, rm.Key)
	assert.Equal(t, mockJobID, rm.Headers["job_id"])
	assert.Equal(t, "2", rm.Headers["disagreements"])
	_, err = time.Parse(time.RFC3339, rm.Headers["generated_at"])
	assert.NoError(t, err, "invalid generated_at format")
	assertMockResult(t, rm.Result)
}

// TestPipelineEndToEnd wires the full service (Reader -> JobTransformer ->
// Writer + Postgres store) and verifies both sinks receive the result.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	store, err := postgres.Open(ctx, startPostgres(ctx, t), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	publish(ctx, t, broker, kafkago.Message{Key: []byte(mockJobID), Value: loadMockData(t)})

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(newEngine(metrics)),
		pipeline.NewFanoutLoader(writer, store), discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assertMockResult(t, rm.Result)

	require.Eventually(t, func() bool { return p.CheckReadiness(ctx) == nil }, 30*time.Second, 100*time.Millisecond)

	pipelineCancel()
	require.NoError(t, <-errCh)

	rows, err := store.Rows(ctx, mockJobID)
	require.NoError(t, err)
	assert.Equal(t, rm.Result.Rows, rows)

	report, err := store.Report(ctx, mockJobID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RunCount)
	assert.Len(t, report.Disagreements, 2)
	require.NoError(t, store.CheckReadiness(ctx))

	// Writing the same job again replaces its rows.
	require.NoError(t, store.LoadBatch(ctx, []domain.OutputEvent{{Result: &rm.Result}}))
	rows, err = store.Rows(ctx, mockJobID)
	require.NoError(t, err)
	assert.Len(t, rows, len(rm.Result.Rows))
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid jobs.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	publish(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("empty"), Value: []byte(`{"job_id":"empty","runs":[]}`)},
		kafkago.Message{Key: []byte(mockJobID), Value: loadMockData(t)},
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(newEngine(metrics)), writer, discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	rm := readResult(ctx, t, consumer)
	assert.Equal(t, mockJobID, rm.Key)

	// No second message arrives: both poison pills were skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
