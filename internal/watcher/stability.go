package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
)

// ErrTableGone is returned when the table disappears while it settles.
var ErrTableGone = errors.New("table disappeared")

// UnsettledError reports a table that was still arriving at the timeout.
type UnsettledError struct {
	Path     string
	Size     int64
	Declared int64 // Zero when the header could not be read
}

func (e *UnsettledError) Error() string {
	if e.Declared > e.Size {
		return fmt.Sprintf("%s: %d of %d bytes arrived", e.Path, e.Size, e.Declared)
	}
	return fmt.Sprintf("%s: still growing at %d bytes", e.Path, e.Size)
}

// settler waits until a table has fully arrived: its size holds still for
// the threshold and reaches the length its header declares. A table that
// stays short of its declared length is accepted after holding still for
// the grace period, since some writers leave a record count larger than
// the data. A file too short to declare a length only needs to hold still;
// the handler reports it as malformed.
type settler struct {
	threshold time.Duration
	grace     time.Duration
	timeout   time.Duration
	interval  time.Duration
}

// newSettler polls every threshold/4 (at least 50ms), allows a short table
// four thresholds and gives up after 30 seconds.
func newSettler(threshold time.Duration) *settler {
	interval := threshold / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	return &settler{threshold: threshold, grace: 4 * threshold, timeout: 30 * time.Second, interval: interval}
}

func (s *settler) wait(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	last, err := sample(path)
	if err != nil {
		return err
	}
	lastChange := time.Now()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &UnsettledError{Path: path, Size: last.size, Declared: last.declared}
			}
			return ctx.Err()
		case <-ticker.C:
			cur, err := sample(path)
			if err != nil {
				return err
			}
			if cur != last {
				last = cur
				lastChange = time.Now()
				continue
			}
			held := time.Since(lastChange)
			if held >= s.grace || (cur.complete() && held >= s.threshold) {
				return nil
			}
		}
	}
}

// arrival is one observation of a table on disk.
type arrival struct {
	size     int64
	declared int64
}

func (a arrival) complete() bool {
	return a.declared == 0 || a.size >= a.declared
}

func sample(path string) (arrival, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return arrival{}, ErrTableGone
		}
		return arrival{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return arrival{}, err
	}
	a := arrival{size: info.Size()}

	prefix := make([]byte, dbf.SizeFieldsEnd)
	if _, err := io.ReadFull(f, prefix); err == nil {
		if declared, err := dbf.DeclaredSize(prefix); err == nil {
			a.declared = declared
		}
	}
	return a, nil
}
