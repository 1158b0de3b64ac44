package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/parquetry/pkg/ingest"
	"github.com/ajitpratap0/parquetry/pkg/metrics"
	"github.com/ajitpratap0/parquetry/pkg/sink"
	"github.com/ajitpratap0/parquetry/pkg/table"
	"github.com/ajitpratap0/parquetry/pkg/writer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <destination>",
		Short: "Write a range of a Kafka partition into a Parquet file",
		Long: `Ingest consumes JSON messages (one object per message) from a Kafka partition
and writes them into one chunked Parquet file, one row group batch per read.
With a consumer group, reading resumes from the group's committed offset when
--start is not given, and the offset after the last written message is
committed once the file is closed. A message value may carry several records
separated by --delimiter.

Example:
  parquetry ingest s3://lake/events/p0.parquet --brokers kafka:9092 --topic events --group lake`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ingest(cmd.Context(), args[0])
		},
	}
	f := cmd.Flags()
	f.StringSlice("brokers", []string{"localhost:9092"}, "Kafka bootstrap brokers")
	f.String("topic", "", "Topic to read")
	f.Int32("partition", 0, "Partition to read")
	f.Int64("start", -1, "First offset to read; -1 for the committed offset or the low watermark")
	f.Int64("end", -1, "Offset to stop before; -1 for the high watermark at start")
	f.Int64("batch-messages", 50000, "Messages per write call")
	f.Duration("read-timeout", 10*time.Second, "How long one read waits for messages")
	f.String("group", "", "Consumer group to commit the final offset under")
	f.String("delimiter", ingest.DefaultDelimiter, "Separator between JSON records in message values")
	f.String("client-id", "parquetry", "Kafka client id")
	f.String("security-protocol", "", "PLAINTEXT, SSL or SASL_SSL")
	f.String("sasl-mechanism", "", "PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512")
	f.String("sasl-username", "", "SASL user")
	f.String("sasl-password", "", "SASL password")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func (a *app) kafkaConfig() ingest.KafkaConfig {
	return ingest.KafkaConfig{
		Brokers:          a.v.GetStringSlice("brokers"),
		ClientID:         a.v.GetString("client-id"),
		SecurityProtocol: a.v.GetString("security-protocol"),
		SASLMechanism:    a.v.GetString("sasl-mechanism"),
		SASLUsername:     a.v.GetString("sasl-username"),
		SASLPassword:     a.v.GetString("sasl-password"),
		ConsumerGroupID:  a.v.GetString("group"),
		Delimiter:        a.v.GetString("delimiter"),
	}
}

func (a *app) ingest(ctx context.Context, destination string) error {
	cfg, err := writerConfig(a.v)
	if err != nil {
		return err
	}
	cfg.Chunked = true

	topic := a.v.GetString("topic")
	partition := a.v.GetInt32("partition")
	batch := a.v.GetInt64("batch-messages")
	if batch <= 0 {
		return fmt.Errorf("batch-messages must be positive, got %d", batch)
	}
	timeout := a.v.GetDuration("read-timeout")

	h, err := ingest.NewKafkaHandle(a.kafkaConfig(), a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			a.logger.Warn("failed to close kafka handle", zap.Error(cerr))
		}
	}()

	a.logger.Debug("kafka handle ready", zap.Any("config", h.DumpConfigs()))

	low, high, err := h.WatermarkOffsets(topic, partition)
	if err != nil {
		return err
	}
	next, end := a.v.GetInt64("start"), a.v.GetInt64("end")
	if next < 0 && a.v.GetString("group") != "" {
		committed, err := h.Committed(topic, partition)
		if err != nil {
			return err
		}
		if committed >= low {
			next = committed
		}
	}
	if next < 0 {
		next = low
	}
	if end < 0 {
		end = high
	}

	snk, err := sink.Open(ctx, destination, a.logger)
	if err != nil {
		return err
	}
	w, err := writer.New(snk, cfg,
		writer.WithLogger(a.logger),
		writer.WithKeyValueMetadata(map[string]string{
			"kafka.topic":     topic,
			"kafka.partition": fmt.Sprint(partition),
		}))
	if err != nil {
		_ = snk.Close(ctx)
		return err
	}

	tracker := metrics.NewThroughputTracker(metrics.Default(), "ingest")
	var rows int64
	for next < end {
		stop := min(next+batch, end)
		rec, resume, err := h.ReadTable(ctx, topic, partition, next, stop, timeout)
		if err != nil {
			_, _ = w.Close(ctx, "")
			return err
		}
		if rec != nil {
			err = w.Write(ctx, table.FromRecord(rec))
			n := rec.NumRows()
			rec.Release()
			if err != nil {
				_, _ = w.Close(ctx, "")
				return fmt.Errorf("write failed at offset %d: %w", next, err)
			}
			rows += n
			tracker.Increment(n)
		}
		if resume <= next {
			a.logger.Warn("no messages arrived before the read timeout",
				zap.Int64("offset", next),
				zap.Duration("timeout", timeout))
			break
		}
		next = resume
	}

	if _, err := w.Close(ctx, ""); err != nil {
		return err
	}
	if group := a.v.GetString("group"); group != "" {
		if err := h.Commit(topic, partition, next); err != nil {
			return err
		}
	}

	a.logger.Info("ingest completed",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("next_offset", next),
		zap.Int64("rows", rows),
		zap.Float64("rows_per_second", tracker.GetAndReset()),
		zap.Float64("messages_per_second", h.MessagesPerSecond()))
	return nil
}
