package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelfall.ai/internal/sim/world"
)

const segmentLayout = "2006-01-02-15"

// RaceLogger appends race lifecycle events to hourly zstd JSONL segments named
// races-YYYY-MM-DD-HH.jsonl.zst. An entry lands in the segment for the hour it
// happened; entries without a timestamp use the wall clock.
type RaceLogger struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	seg *segment
}

// segment is one open hourly file.
type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
	enc  *json.Encoder
}

func NewRaceLogger(worldDir string) *RaceLogger {
	return &RaceLogger{dir: RaceLogDir(worldDir), now: time.Now}
}

func RaceLogDir(worldDir string) string { return filepath.Join(worldDir, "races") }

func segmentName(hour string) string { return fmt.Sprintf("races-%s.jsonl.zst", hour) }

func (l *RaceLogger) WriteRace(entry world.RaceLogEntry) error {
	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	hour := at.UTC().Format(segmentLayout)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seg == nil || l.seg.hour != hour {
		if err := l.rollLocked(hour); err != nil {
			return fmt.Errorf("race log %s: %w", segmentName(hour), err)
		}
	}
	if err := l.seg.enc.Encode(entry); err != nil {
		return err
	}
	// Flush per entry so a crash loses at most the zstd frame in progress.
	return l.seg.buf.Flush()
}

func (l *RaceLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.seg.close()
	l.seg = nil
	return err
}

func (l *RaceLogger) rollLocked(hour string) error {
	if err := l.seg.close(); err != nil {
		return err
	}
	l.seg = nil
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	seg, err := openSegment(filepath.Join(l.dir, segmentName(hour)), hour)
	if err != nil {
		return err
	}
	l.seg = seg
	return nil
}

// openSegment appends a new zstd frame to path, so reopening an hour after a
// restart keeps earlier entries readable.
func openSegment(path, hour string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	buf := bufio.NewWriterSize(zw, 32*1024)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &segment{hour: hour, f: f, zw: zw, buf: buf, enc: enc}, nil
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	zErr := s.zw.Close()
	fErr := s.f.Close()
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
