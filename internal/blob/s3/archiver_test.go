package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// memWriter captures uploads in memory.
type memWriter struct {
	mu   sync.Mutex
	puts map[string][]byte
	fail bool
}

func newMemWriter() *memWriter {
	return &memWriter{puts: make(map[string][]byte)}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.fail {
		return errors.New("upload failed")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.puts[path] = b
	w.mu.Unlock()
	return nil
}

func (w *memWriter) putCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.puts)
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func snapFor(assetID string) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		AssetID:   assetID,
		Market:    "0xcafe",
		Timestamp: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
		Bids:      []domain.OrderbookLevel{{Price: 0.48, Size: 100}},
		Asks:      []domain.OrderbookLevel{{Price: 0.52, Size: 80}},
	}
}

func TestArchiverFlushWritesJSONL(t *testing.T) {
	w := newMemWriter()
	a := NewBookArchiver(ArchiverConfig{Coin: "btc"}, w, nil)

	a.Add(snapFor("tok-up"))
	a.Add(snapFor("tok-down"))
	a.flush(context.Background())

	require.Len(t, w.puts, 1)
	for key, data := range w.puts {
		assert.Contains(t, key, "books/btc/")
		assert.Contains(t, key, ".jsonl")

		sc := bufio.NewScanner(bytes.NewReader(data))
		var lines []bookLine
		for sc.Scan() {
			var l bookLine
			require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
			lines = append(lines, l)
		}
		require.Len(t, lines, 2)
		assert.Equal(t, "tok-up", lines[0].AssetID)
		assert.InDelta(t, 0.50, lines[0].Mid, 1e-9)
		assert.Equal(t, 1, lines[0].BidDepth)
	}
}

func TestArchiverEmptyBufferSkipsUpload(t *testing.T) {
	w := newMemWriter()
	a := NewBookArchiver(ArchiverConfig{Coin: "btc"}, w, nil)
	a.flush(context.Background())
	assert.Empty(t, w.puts)
}

func TestArchiverDropsBatchOnError(t *testing.T) {
	w := newMemWriter()
	w.fail = true
	a := NewBookArchiver(ArchiverConfig{Coin: "btc"}, w, nil)

	a.Add(snapFor("tok-up"))
	a.flush(context.Background())

	// The batch is gone; a later successful flush uploads nothing stale.
	w.fail = false
	a.flush(context.Background())
	assert.Empty(t, w.puts)
}

func TestArchiverMaybeFlush(t *testing.T) {
	w := newMemWriter()
	a := NewBookArchiver(ArchiverConfig{Coin: "btc", MaxBatchBytes: 10}, w, nil)

	a.MaybeFlush(context.Background())
	assert.Empty(t, w.puts, "small buffer stays put")

	a.Add(snapFor("tok-up"))
	a.MaybeFlush(context.Background())
	assert.Len(t, w.puts, 1)
}

func TestArchiverFlushesEarlyOnBatchSize(t *testing.T) {
	w := newMemWriter()
	// The interval alone would never fire inside this test; only the
	// size trigger can cause an upload.
	a := NewBookArchiver(ArchiverConfig{Coin: "btc", FlushInterval: time.Hour, MaxBatchBytes: 10}, w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()

	a.Add(snapFor("tok-up"))

	require.Eventually(t, func() bool { return w.putCount() == 1 },
		2*time.Second, 10*time.Millisecond, "oversized buffer must upload before the interval")

	cancel()
	<-done
}

func TestObjectKeyLayout(t *testing.T) {
	a := NewBookArchiver(ArchiverConfig{Coin: "eth"}, newMemWriter(), nil)
	at := time.Date(2026, 8, 26, 13, 45, 7, 123_000_000, time.UTC)
	assert.Equal(t, "books/eth/2026-08-26/134507.123.jsonl", a.objectKey(at))
}
