package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	defaultFlushInterval = time.Minute
	defaultMaxBatchBytes = 4 * 1024 * 1024
)

// ArchiverConfig tunes the book archiver. Zero values use defaults.
type ArchiverConfig struct {
	// Coin labels the object key prefix, e.g. "btc".
	Coin string

	// FlushInterval is how often a non-empty buffer is uploaded.
	FlushInterval time.Duration

	// MaxBatchBytes flushes early once the buffer reaches this size.
	MaxBatchBytes int
}

// bookLine is the JSONL row written for each archived snapshot.
type bookLine struct {
	AssetID  string    `json:"asset_id"`
	Market   string    `json:"market"`
	Time     time.Time `json:"time"`
	BestBid  float64   `json:"best_bid"`
	BestAsk  float64   `json:"best_ask"`
	Mid      float64   `json:"mid"`
	BidDepth int       `json:"bid_depth"`
	AskDepth int       `json:"ask_depth"`
}

// BookArchiver buffers order-book snapshots and periodically uploads them
// as JSONL batches. Losing a batch on crash is acceptable; the archive is a
// research byproduct, not the trading state.
type BookArchiver struct {
	cfg    ArchiverConfig
	writer domain.BlobWriter
	logger *slog.Logger

	mu    sync.Mutex
	buf   bytes.Buffer
	lines int

	// kick wakes the Run loop for a size-triggered flush.
	kick chan struct{}
}

// NewBookArchiver creates an archiver writing through the given BlobWriter.
func NewBookArchiver(cfg ArchiverConfig, writer domain.BlobWriter, logger *slog.Logger) *BookArchiver {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = defaultMaxBatchBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookArchiver{
		cfg:    cfg,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
		kick:   make(chan struct{}, 1),
	}
}

// Add buffers one snapshot. It never blocks on the network; uploads happen
// on the Run loop, which is woken early once the buffer outgrows
// MaxBatchBytes.
func (a *BookArchiver) Add(snap domain.OrderbookSnapshot) {
	line := bookLine{
		AssetID:  snap.AssetID,
		Market:   snap.Market,
		Time:     snap.Timestamp,
		BestBid:  snap.BestBid(),
		BestAsk:  snap.BestAsk(),
		Mid:      snap.MidPrice(),
		BidDepth: len(snap.Bids),
		AskDepth: len(snap.Asks),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.buf.Write(data)
	a.buf.WriteByte('\n')
	a.lines++
	oversized := a.buf.Len() >= a.cfg.MaxBatchBytes
	a.mu.Unlock()

	if oversized {
		select {
		case a.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes the buffer on the configured interval until ctx is cancelled,
// then performs a final flush with a short grace timeout.
func (a *BookArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.flush(ctx)
		case <-a.kick:
			a.MaybeFlush(ctx)
		}
	}
}

// flush uploads and resets the buffer. Upload errors are logged and the
// batch is dropped rather than retried, to bound memory.
func (a *BookArchiver) flush(ctx context.Context) {
	a.mu.Lock()
	if a.lines == 0 {
		a.mu.Unlock()
		return
	}
	data := make([]byte, a.buf.Len())
	copy(data, a.buf.Bytes())
	lines := a.lines
	a.buf.Reset()
	a.lines = 0
	a.mu.Unlock()

	key := a.objectKey(time.Now().UTC())
	var err error
	if int64(len(data)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		a.logger.Error("archive flush failed",
			slog.String("key", key), slog.Int("lines", lines), slog.Any("error", err))
		return
	}
	a.logger.Debug("archived book batch",
		slog.String("key", key), slog.Int("lines", lines))
}

// MaybeFlush uploads early when the buffer has outgrown MaxBatchBytes.
func (a *BookArchiver) MaybeFlush(ctx context.Context) {
	a.mu.Lock()
	oversized := a.buf.Len() >= a.cfg.MaxBatchBytes
	a.mu.Unlock()
	if oversized {
		a.flush(ctx)
	}
}

func (a *BookArchiver) objectKey(now time.Time) string {
	return fmt.Sprintf("books/%s/%s/%s.jsonl",
		a.cfg.Coin, now.Format("2006-01-02"), now.Format("150405.000"))
}
