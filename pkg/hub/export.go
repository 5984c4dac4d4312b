package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Nullpoint56/Warships2-sub000/pkg/ringbuf"
)

// ErrExportQueueFull is returned when ExportAsync cannot enqueue without
// blocking the caller.
var ErrExportQueueFull = errors.New("export queue full")

// ErrHubClosed is returned when exporting through a closed hub.
var ErrHubClosed = errors.New("hub closed")

// ExportFormat selects the export file layout.
type ExportFormat string

// FormatJSONL writes one JSON envelope per line.
const FormatJSONL ExportFormat = "jsonl"

// ExportRequest describes one export job.
type ExportRequest struct {
	Path      string
	Format    ExportFormat
	SinceTick uint64
}

// ExportSummary reports a completed export.
type ExportSummary struct {
	Path     string        `json:"path"`
	Records  int           `json:"records"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration_ns"`
}

// Export writes the current buffer contents to disk. It is the only hub
// method that performs blocking I/O; call it from a background path, or use
// ExportAsync. The write is atomic (temp file + rename) and honors
// cancellation between records without leaving a partial file behind.
func (h *Hub) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	start := h.clock()

	if req.Format == "" {
		req.Format = FormatJSONL
	}
	if req.Format != FormatJSONL {
		return ExportSummary{}, fmt.Errorf("unsupported export format %q", req.Format)
	}

	snap := h.buf.Snapshot(ringbuf.SnapshotOptions{})

	if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.Path), ".export-*.tmp")
	if err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	records := 0
	for _, env := range snap {
		if err := ctx.Err(); err != nil {
			return ExportSummary{}, fmt.Errorf("export canceled: %w", err)
		}
		if req.SinceTick > 0 && env.Tick < req.SinceTick {
			continue
		}
		line, err := json.Marshal(env)
		if err != nil {
			return ExportSummary{}, fmt.Errorf("export: encode envelope: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return ExportSummary{}, fmt.Errorf("export: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return ExportSummary{}, fmt.Errorf("export: %w", err)
		}
		records++
	}
	if err := w.Flush(); err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}

	if err := os.Rename(tmp.Name(), req.Path); err != nil {
		return ExportSummary{}, fmt.Errorf("export: commit: %w", err)
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("export: %w", err)
	}

	return ExportSummary{
		Path:     req.Path,
		Records:  records,
		Bytes:    info.Size(),
		Duration: h.clock().Sub(start),
	}, nil
}

// ExportAsync enqueues an export for the background worker. It never blocks:
// a full queue returns ErrExportQueueFull so the emission path can shed the
// request instead of stalling.
func (h *Hub) ExportAsync(req ExportRequest) error {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()

	if h.closed.Load() {
		return ErrHubClosed
	}
	select {
	case h.exportCh <- req:
		return nil
	default:
		return ErrExportQueueFull
	}
}

// exportWorker drains the bounded export queue. Failures are logged; async
// callers opted out of synchronous error delivery.
func (h *Hub) exportWorker() {
	defer h.exportWG.Done()
	for req := range h.exportCh {
		summary, err := h.Export(context.Background(), req)
		if err != nil {
			h.log.Warn("background export failed", "path", req.Path, "error", err)
			continue
		}
		h.log.Info("background export complete",
			"path", summary.Path, "records", summary.Records, "bytes", summary.Bytes)
	}
}

// Close stops accepting async exports and waits for queued jobs to finish.
func (h *Hub) Close() {
	h.closeMu.Lock()
	if h.closed.Swap(true) {
		h.closeMu.Unlock()
		return
	}
	close(h.exportCh)
	h.closeMu.Unlock()
	h.exportWG.Wait()
}
