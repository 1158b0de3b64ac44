// Package writer turns arrow tables into columnar files. A Writer projects
// every table onto leaf column descriptors, plans row groups and pages from
// per-fragment figures, schedules the page kernels in memory-bounded batches
// and streams the gathered column chunks to a sink, accumulating the footer
// metadata until Close.
//
// Basic usage:
//
//	snk, _ := sink.CreateFile("out.parquet")
//	w, err := writer.New(snk, config.Default())
//	if err != nil {
//	    return err
//	}
//	if err := w.Write(ctx, tbl); err != nil {
//	    return err
//	}
//	_, err = w.Close(ctx, "")
package writer

import (
	"context"
	"maps"
	"sync"

	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/config"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/logger"
	"github.com/ajitpratap0/parquetry/pkg/metrics"
	"github.com/ajitpratap0/parquetry/pkg/observability"
	"github.com/ajitpratap0/parquetry/pkg/pool"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/ajitpratap0/parquetry/pkg/sink"
	"github.com/ajitpratap0/parquetry/pkg/table"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer writes tables to one sink. Calls are serialized; a Writer shares no
// state with other writers.
type Writer struct {
	id         string
	sink       sink.Sink
	cfg        *config.WriterConfig
	codec      compression.Algorithm
	codecBound func(int) int

	kernels accel.Kernels
	queue   *accel.Queue
	device  *accel.Device
	logger  *zap.Logger
	metrics *metrics.Collector
	kv      map[string]string

	mu            sync.Mutex
	acc           *accumulator
	headerWritten bool
	writes        int
	closed        bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithKernels replaces the host kernels.
func WithKernels(k accel.Kernels) Option {
	return func(w *Writer) { w.kernels = k }
}

// WithLogger sets the logger. The default is the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithMetrics sets the metrics collector. The default is metrics.Default().
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Writer) { w.metrics = c }
}

// WithKeyValueMetadata adds footer key/value metadata on top of the
// configured entries.
func WithKeyValueMetadata(kv map[string]string) Option {
	return func(w *Writer) { maps.Copy(w.kv, kv) }
}

// New creates a writer. The configuration is validated here so that no
// accelerator work is issued for a writer that cannot succeed.
func New(snk sink.Sink, cfg *config.WriterConfig, opts ...Option) (*Writer, error) {
	if snk == nil {
		return nil, pqerrors.New(pqerrors.ErrorTypeUsage, "sink is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}

	w := &Writer{
		id:    uuid.NewString(),
		sink:  snk,
		cfg:   cfg,
		codec: codec,
		kv:    make(map[string]string, len(cfg.Metadata)),
	}
	maps.Copy(w.kv, cfg.Metadata)
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get()
	}
	w.logger = w.logger.With(zap.String("writer_id", w.id))
	if w.metrics == nil {
		w.metrics = metrics.Default()
	}
	level := compression.Level(cfg.CompressionLevel)
	if w.kernels == nil {
		w.kernels = accel.NewHost(w.logger, level, 0)
	}

	w.codecBound = func(n int) int { return n }
	if codec != compression.None {
		c, err := compression.NewCompressor(&compression.Config{Algorithm: codec, Level: level})
		if err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, "failed to create compressor").
				WithDetail("codec", string(codec))
		}
		w.codecBound = c.MaxCompressedLen
	}

	w.queue = accel.NewQueue(w.logger)
	w.device = accel.NewDevice(cfg.Memory.DeviceMemoryLimit)
	w.acc = newAccumulator(w.kv, cfg.CreatedBy, cfg.Statistics.Enabled())

	w.logger.Debug("writer created",
		zap.String("codec", string(codec)),
		zap.String("statistics", string(cfg.Statistics)),
		zap.Bool("chunked", cfg.Chunked),
		zap.Bool("dictionary", cfg.EnableDictionary))
	return w, nil
}

// ID returns the writer instance id used in logs.
func (w *Writer) ID() string { return w.id }

// Write encodes tbl as one or more row groups. In single-write mode only one
// call is accepted. A failed call leaves the metadata of earlier calls intact.
func (w *Writer) Write(ctx context.Context, tbl *table.Table) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return pqerrors.Wrap(pqerrors.ErrWriterClosed, pqerrors.ErrorTypeWriterClosed, "write after close")
	}
	if !w.cfg.Chunked && w.writes > 0 {
		return pqerrors.New(pqerrors.ErrorTypeUsage, "writer accepts a single table unless chunked mode is enabled")
	}
	w.writes++

	ctx, span := observability.StartSpan(ctx, "writer.write")
	timer := metrics.NewTimer("write")
	defer func() {
		span.Finish(err)
		w.metrics.WriteLatency.WithLabelValues(timer.Name()).Observe(timer.Stop().Seconds())
	}()
	log := w.logger
	if jobID, ok := ctx.Value(logger.JobIDKey).(string); ok {
		log = log.With(zap.String("job_id", jobID))
	}

	if err := tbl.Validate(); err != nil {
		return err
	}
	cols, err := projectTable(tbl, newProjector(w.cfg.DecimalPrecisions, w.cfg.Int96Timestamps, w.cfg.Chunked, w.cfg.RequiredColumns...))
	if err != nil {
		return err
	}
	schema := buildSchema(cols)
	if err := w.acc.check(schema); err != nil {
		return err
	}

	rows := int64(tbl.NumRows())
	span.SetAttribute("rows", rows)
	span.SetAttribute("columns", len(cols))

	frags, err := w.initFragments(ctx, cols)
	if err != nil {
		return err
	}
	plans := planRowGroups(fragmentBytes(frags), w.cfg.Layout.FragmentRows, rows,
		w.cfg.Layout.RowGroupMaxBytes, w.cfg.Layout.RowGroupMaxRows)

	chunks := newChunks(cols, frags, plans)
	w.decideDictionaries(chunks, frags)
	if err := w.buildDictionaries(ctx, chunks); err != nil {
		return err
	}
	defer releaseDictionaries(w.device, chunks)

	batches := w.planBatches(chunks, frags, len(plans))
	span.AddEvent("planned")

	groups, end, err := w.encodeAndOutput(ctx, batches, frags)
	if err != nil {
		// Chunks that reached the sink are unreferenced but occupy the file.
		w.acc.offset = w.sink.BytesWritten()
		log.Error("write failed", zap.Error(err), zap.Int64("rows", rows))
		return err
	}
	w.acc.commit(schema, rows, groups, end)

	w.metrics.RowsWritten.WithLabelValues(string(w.codec)).Add(float64(rows))
	w.metrics.RowGroups.Add(float64(len(groups)))
	w.metrics.DevicePeakBytes.Set(float64(w.device.Peak()))
	log.Info("table written",
		zap.Int64("rows", rows),
		zap.Int("columns", len(cols)),
		zap.Int("row_groups", len(groups)),
		zap.Int("batches", len(batches)),
		zap.Int64("file_offset", end))
	return nil
}

func (w *Writer) initFragments(ctx context.Context, cols []*accel.ColumnDesc) ([][]accel.Fragment, error) {
	var frags [][]accel.Fragment
	if err := w.queue.Submit(ctx, "init_fragments", func(ctx context.Context) error {
		var err error
		frags, err = w.kernels.InitFragments(ctx, cols, w.cfg.Layout.FragmentRows)
		return err
	}); err != nil {
		return nil, err
	}
	if err := w.queue.Join(ctx); err != nil {
		return nil, err
	}
	return frags, nil
}

func (w *Writer) writeHeader(ctx context.Context) error {
	if w.headerWritten {
		return nil
	}
	if err := w.sink.HostWrite(ctx, format.Magic[:]); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to write file header")
	}
	w.headerWritten = true
	return nil
}

// encodeAndOutput encodes the batches one after the other over one arena and
// writes their chunks.
func (w *Writer) encodeAndOutput(ctx context.Context, batches []*batchPlan, frags [][]accel.Fragment) ([]*format.RowGroup, int64, error) {
	if err := w.writeHeader(ctx); err != nil {
		return nil, 0, err
	}
	offset := w.acc.offset
	if len(batches) == 0 {
		return nil, offset, nil
	}

	arena, err := w.device.Alloc(arenaSize(batches))
	if err != nil {
		return nil, 0, err
	}
	defer arena.Release()
	staging := pool.GlobalBufferPool.Get(int(maxChunkBytes(batches)))
	defer pool.GlobalBufferPool.Put(staging)

	var out []*format.RowGroup
	ordinal := len(w.acc.md.RowGroups)
	for i, b := range batches {
		if err := w.encodeBatch(ctx, arena, b, frags); err != nil {
			return nil, 0, err
		}
		groups, next, err := w.outputBatch(ctx, arena, b, offset, ordinal, staging)
		if err != nil {
			return nil, 0, err
		}
		releaseDictionaries(w.device, b.chunks)
		out = append(out, groups...)
		ordinal += len(groups)
		offset = next
		w.metrics.Batches.Inc()

		w.logger.Debug("batch written",
			zap.Int("batch", i),
			zap.Int("row_groups", len(b.groups)),
			zap.Int("chunks", len(b.chunks)),
			zap.Int("pages", len(b.pages)),
			zap.Int64("buffer_bytes", b.bytes))
	}
	return out, offset, nil
}

// Close writes the footer and closes the sink. It is idempotent. When
// columnChunkFilePath is set, Close also returns a standalone metadata buffer
// whose column chunks all point at that path.
func (w *Writer) Close(ctx context.Context, columnChunkFilePath string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		if err := w.finish(ctx); err != nil {
			return nil, err
		}
	}
	if columnChunkFilePath == "" {
		return nil, nil
	}
	md, err := w.acc.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return standaloneMetadata(ctx, md, columnChunkFilePath)
}

func (w *Writer) finish(ctx context.Context) (err error) {
	ctx, span := observability.StartSpan(ctx, "writer.close")
	timer := metrics.NewTimer("close")
	defer func() {
		span.Finish(err)
		w.metrics.WriteLatency.WithLabelValues(timer.Name()).Observe(timer.Stop().Seconds())
	}()
	defer w.queue.Close()

	if err := w.writeHeader(ctx); err != nil {
		return err
	}
	md, err := w.acc.snapshot(ctx)
	if err != nil {
		return err
	}
	footer, err := format.EncodeFooter(ctx, md)
	if err != nil {
		return err
	}
	if err := w.sink.HostWrite(ctx, footer); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to write footer")
	}
	if err := w.sink.Flush(ctx); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to flush sink")
	}
	if err := w.sink.Close(ctx); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to close sink")
	}

	w.logger.Info("writer closed",
		zap.Int64("rows", md.NumRows),
		zap.Int("row_groups", len(md.RowGroups)),
		zap.Int("footer_bytes", len(footer)),
		zap.Int64("bytes", w.sink.BytesWritten()))
	w.logger.Debug("buffer pool", zap.Any("buckets", pool.GlobalBufferPool.Stats()))
	return nil
}

// Metadata returns a deep copy of the file metadata accumulated so far.
func (w *Writer) Metadata(ctx context.Context) (*format.FileMetaData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acc.snapshot(ctx)
}
