// Package entry is the intent journal. Every engine command is
// appended here, with its sequence number, before it executes; replay
// at boot rebuilds the book deterministically.
package entry

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"odin/infra/wal"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

type WAL struct {
	dir        string
	segSize    int64
	current    *segment
	segIndex   int
	lastRotate time.Time
}

func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	// resume on the newest existing segment
	idx := 0
	if files, err := filepath.Glob(filepath.Join(cfg.Dir, "segment-*.wal")); err == nil && len(files) > 0 {
		idx = len(files) - 1
	}

	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
	}, nil
}

// Append frames and fsyncs one record:
// [bodyLen:4][crc:4][protowire body].
func (w *WAL) Append(r *Record) error {
	body := r.marshal()

	buf := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(buf[4:8], wal.CRC32(body))
	copy(buf[8:], body)

	if err := w.current.append(buf); err != nil {
		return err
	}

	if w.segSize > 0 && w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore drops whole segments whose records are all at or below
// seq. Used once a snapshot covers them.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := filepath.Glob(filepath.Join(w.dir, "segment-*.wal"))
	if err != nil {
		return err
	}

	for _, path := range files {
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (w *WAL) Close() error {
	return w.current.close()
}
