package dlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
)

// rotationInterval is the bucket width delta-log files rotate on,
// matching the original system exactly.
const rotationInterval = 5 * time.Minute

// compressionLevel mirrors the original's explicit choice of a fast,
// low compression level rather than maximum ratio, since the log is
// write-amplified on the hot path.
const compressionLevel = flate.BestSpeed

const fileExtension = ".bin.fl"

// Log is an append-only, rotating, compressed record log. Records are
// written with a 4-byte big-endian length prefix around a
// flate-compressed payload. Readers tolerate a truncated trailing
// record (the writer's last flush before a crash) by stopping cleanly
// rather than erroring the whole read.
type Log struct {
	dir             string
	rotationSeconds int64
	retention       time.Duration
	neverDelete     bool

	mu          sync.Mutex
	file        *os.File
	writer      *bufio.Writer
	bucketStart int64
}

// NewLog constructs a Log rooted at dir. If retention is zero, files
// are never cleaned up (the touch log's policy); otherwise
// StartCleanup runs a background goroutine that removes files older
// than retention every minute, always skipping the currently open
// file. NewLog itself starts no goroutine.
func NewLog(dir string, retention time.Duration) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l := &Log{
		dir:             dir,
		rotationSeconds: int64(rotationInterval.Seconds()),
		retention:       retention,
		neverDelete:     retention == 0,
	}
	return l, nil
}

// StartCleanup launches the periodic old-file cleanup loop. Callers
// that want the touch-log's "never delete" behavior simply don't call
// this.
func (l *Log) StartCleanup(stop <-chan struct{}) {
	if l.neverDelete {
		return
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.cleanupOld()
			}
		}
	}()
}

func (l *Log) bucketFileName(bucket int64) string {
	ts := time.Unix(bucket*l.rotationSeconds, 0).UTC()
	return ts.Format("20060102_150405") + fileExtension
}

// Append writes one raw record to the currently-open (or freshly
// rotated) bucket file.
func (l *Log) Append(record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().Unix()
	bucket := now / l.rotationSeconds

	if l.file == nil || bucket != l.bucketStart {
		if err := l.rotateLocked(bucket); err != nil {
			return err
		}
	}

	payload, err := compressRecord(record)
	if err != nil {
		return fmt.Errorf("compress record: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := l.writer.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := l.writer.Write(payload); err != nil {
		return err
	}
	return l.writer.Flush()
}

func (l *Log) rotateLocked(bucket int64) error {
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		l.file.Close()
	}

	path := filepath.Join(l.dir, l.bucketFileName(bucket))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.bucketStart = bucket
	return nil
}

// Close flushes and closes the currently open file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func compressRecord(record []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(record); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressRecord(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	return io.ReadAll(r)
}

// ReadRecent reads every non-truncated record from every log file
// whose bucket timestamp is >= cutoff, in file order.
func (l *Log) ReadRecent(cutoff time.Time) ([][]byte, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExtension) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out [][]byte
	for _, name := range names {
		ts, err := parseFileTimestamp(name)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		records, err := l.readFile(filepath.Join(l.dir, name))
		if err != nil {
			log.Printf("dlog: error reading %s: %v", name, err)
			continue
		}
		out = append(out, records...)
	}
	return out, nil
}

func parseFileTimestamp(name string) (time.Time, error) {
	base := strings.TrimSuffix(name, fileExtension)
	return time.Parse("20060102_150405", base)
}

func (l *Log) readFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out [][]byte
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			// Truncated trailing record (or clean EOF): stop without error.
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		record, err := decompressRecord(payload)
		if err != nil {
			log.Printf("dlog: skipping corrupt record in %s: %v", path, err)
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// cleanupOld removes every file older than retention, except the
// currently open file's bucket — deleting (or even just locking) the
// actively-written file would corrupt in-flight writes.
func (l *Log) cleanupOld() {
	l.mu.Lock()
	openBucket := l.bucketStart
	l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-l.retention)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExtension) {
			continue
		}
		ts, err := parseFileTimestamp(e.Name())
		if err != nil {
			continue
		}
		bucket := ts.Unix() / l.rotationSeconds
		if bucket == openBucket {
			continue
		}
		if ts.Before(cutoff) {
			_ = os.Remove(filepath.Join(l.dir, e.Name()))
		}
	}
}
