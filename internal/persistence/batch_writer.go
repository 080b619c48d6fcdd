package persistence

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dca-core/pkg/db"
)

// FillWriter buffers trade fills arriving from the user data stream and
// writes them to SQLite in batched transactions. Execution reports can
// burst far faster than the single-writer database likes, so fills are
// collected and committed together.
type FillWriter struct {
	database    *db.Database
	buffer      []db.Fill
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	metrics     FillWriterMetrics
}

// FillWriterMetrics reports batching statistics.
type FillWriterMetrics struct {
	TotalFills    uint64    `json:"total_fills"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewFillWriter creates a fill writer. maxSize triggers an early flush;
// interval bounds how long a fill can sit unpersisted.
func NewFillWriter(database *db.Database, maxSize int, interval time.Duration) *FillWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	fw := &FillWriter{
		database:    database,
		buffer:      make([]db.Fill, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.backgroundFlush()

	return fw
}

// Add queues one fill for persistence.
func (fw *FillWriter) Add(f db.Fill) {
	fw.mu.Lock()
	fw.buffer = append(fw.buffer, f)
	shouldFlush := len(fw.buffer) >= fw.maxSize
	fw.mu.Unlock()

	if shouldFlush {
		fw.Flush()
	}
}

// Flush writes every buffered fill in one transaction.
func (fw *FillWriter) Flush() error {
	fw.mu.Lock()
	if len(fw.buffer) == 0 {
		fw.mu.Unlock()
		return nil
	}
	fills := fw.buffer
	fw.buffer = make([]db.Fill, 0, fw.maxSize)
	fw.mu.Unlock()

	return fw.writeBatch(fills)
}

func (fw *FillWriter) writeBatch(fills []db.Fill) error {
	atomic.AddUint64(&fw.metrics.TotalFills, uint64(len(fills)))
	atomic.AddUint64(&fw.metrics.TotalBatches, 1)
	fw.metrics.LastBatchSize = len(fills)
	fw.metrics.LastFlushTime = time.Now()

	if err := fw.database.CreateFills(fills); err != nil {
		atomic.AddUint64(&fw.metrics.TotalErrors, 1)
		log.Printf("❌ FillWriter: batch of %d failed: %v", len(fills), err)
		return err
	}
	log.Printf("💾 FillWriter: flushed %d fills", len(fills))
	return nil
}

func (fw *FillWriter) backgroundFlush() {
	defer fw.wg.Done()
	ticker := time.NewTicker(fw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := fw.Flush(); err != nil {
				log.Printf("⚠️ FillWriter: background flush error: %v", err)
			}
		case <-fw.done:
			// Final flush before shutdown
			if err := fw.Flush(); err != nil {
				log.Printf("⚠️ FillWriter: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns how many fills await persistence.
func (fw *FillWriter) Pending() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.buffer)
}

// GetMetrics returns a snapshot of the batching statistics.
func (fw *FillWriter) GetMetrics() FillWriterMetrics {
	return FillWriterMetrics{
		TotalFills:    atomic.LoadUint64(&fw.metrics.TotalFills),
		TotalBatches:  atomic.LoadUint64(&fw.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&fw.metrics.TotalErrors),
		LastBatchSize: fw.metrics.LastBatchSize,
		LastFlushTime: fw.metrics.LastFlushTime,
	}
}

// Close flushes and stops the background loop.
func (fw *FillWriter) Close() error {
	close(fw.done)
	fw.wg.Wait()
	return nil
}
