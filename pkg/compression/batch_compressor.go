package compression

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Block is one independent unit of compression. Dst is a caller owned slot
// whose capacity bounds the compressed output.
type Block struct {
	Src []byte
	Dst []byte
}

// BlockResult reports the outcome for the block at the same index.
type BlockResult struct {
	Len int   // compressed bytes written to Dst
	Err error // non-nil when the block could not be compressed into Dst
}

// BatchCompressor compresses many independent blocks with a fixed number of
// workers. Results keep the order of the input blocks.
type BatchCompressor struct {
	logger     *zap.Logger
	pool       *CompressorPool
	numWorkers int

	// Metrics
	bytesIn  int64
	bytesOut int64
	blocks   int64
}

// NewBatchCompressor creates a batch compressor for config.Algorithm.
// A zero Concurrency uses one worker per CPU.
func NewBatchCompressor(config *Config, logger *zap.Logger) (*BatchCompressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := config.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p, err := NewCompressorPool(config)
	if err != nil {
		return nil, err
	}

	return &BatchCompressor{
		logger:     logger,
		pool:       p,
		numWorkers: workers,
	}, nil
}

// Algorithm returns the algorithm blocks are compressed with.
func (bc *BatchCompressor) Algorithm() Algorithm {
	return bc.pool.Algorithm()
}

// MaxCompressedLen returns the slot size a block of n bytes needs.
func (bc *BatchCompressor) MaxCompressedLen(n int) int {
	return bc.pool.MaxCompressedLen(n)
}

// CompressBlocks compresses every block into its Dst slot. A failure on one
// block is reported in its result and does not stop the others; only context
// cancellation aborts the batch.
func (bc *BatchCompressor) CompressBlocks(ctx context.Context, blocks []Block) ([]BlockResult, error) {
	results := make([]BlockResult, len(blocks))
	if len(blocks) == 0 {
		return results, nil
	}

	workers := bc.numWorkers
	if workers > len(blocks) {
		workers = len(blocks)
	}

	work := make(chan int, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := bc.pool.Get()
			defer bc.pool.Put(c)
			for idx := range work {
				results[idx] = bc.compressBlock(c, blocks[idx])
			}
		}()
	}

	var err error
dispatch:
	for i := range blocks {
		select {
		case work <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return results, nil
}

func (bc *BatchCompressor) compressBlock(c Compressor, b Block) BlockResult {
	slot := b.Dst[:0:cap(b.Dst)]
	out, err := c.Compress(slot, b.Src)
	if err != nil {
		return BlockResult{Err: err}
	}
	if len(out) > cap(b.Dst) {
		return BlockResult{Err: fmt.Errorf("compressed block of %d bytes exceeds slot of %d bytes", len(out), cap(b.Dst))}
	}
	// no-op when the codec wrote in place
	copy(b.Dst[:len(out)], out)

	atomic.AddInt64(&bc.bytesIn, int64(len(b.Src)))
	atomic.AddInt64(&bc.bytesOut, int64(len(out)))
	atomic.AddInt64(&bc.blocks, 1)
	return BlockResult{Len: len(out)}
}

// GetStats returns batch compression statistics
func (bc *BatchCompressor) GetStats() map[string]interface{} {
	in := atomic.LoadInt64(&bc.bytesIn)
	out := atomic.LoadInt64(&bc.bytesOut)
	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}
	return map[string]interface{}{
		"algorithm": string(bc.Algorithm()),
		"workers":   bc.numWorkers,
		"blocks":    atomic.LoadInt64(&bc.blocks),
		"bytes_in":  in,
		"bytes_out": out,
		"ratio":     ratio,
	}
}
