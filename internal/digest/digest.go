// Package digest computes the content identifiers used to address
// objects in the store.
//
// Files are streamed in bounded chunks rather than read in to memory, as
// source files are frequently multi-gigabyte video assets. While reading,
// progress can be reported on a fixed cadence; reporting never affects the
// identifier returned.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hbomb79/Stash/pkg/logger"
)

const (
	DefaultChunkSize = 32 << 20
	DefaultInterval  = 5 * time.Second

	// IDLength is the length of a hex encoded identifier
	IDLength = sha256.Size * 2
)

var log = logger.Get("Digest")

type (
	// Digest is the result of hashing some content.
	Digest struct {
		ID   string
		Size int64
	}

	// Progress is a point-in-time notice about an ongoing digest.
	Progress struct {
		Name       string
		Read       int64
		Total      int64
		Throughput float64
		Elapsed    time.Duration
		Remaining  time.Duration
		Done       bool
	}

	ProgressFunc func(Progress)

	Option func(*options)

	options struct {
		chunkSize int
		interval  time.Duration
		progress  ProgressFunc
		now       func() time.Time
	}
)

// WithChunkSize sets the size of the buffer used when reading.
func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithProgress replaces the progress reporter. A nil function disables
// progress reporting entirely.
func WithProgress(fn ProgressFunc, interval time.Duration) Option {
	return func(o *options) {
		o.progress = fn
		if interval > 0 {
			o.interval = interval
		}
	}
}

// WithClock overrides the time source used for progress reporting.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// File hashes the file at the path given.
func File(ctx context.Context, path string, opts ...Option) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Digest{}, fmt.Errorf("failed to stat %s for hashing: %w", path, err)
	}

	return digest(ctx, path, f, info.Size(), opts...)
}

// Reader hashes all content read from r. The total is only used for progress
// reporting and may be zero if unknown.
func Reader(ctx context.Context, r io.Reader, total int64, opts ...Option) (Digest, error) {
	return digest(ctx, "<reader>", r, total, opts...)
}

func digest(ctx context.Context, name string, r io.Reader, total int64, opts ...Option) (Digest, error) {
	o := &options{chunkSize: DefaultChunkSize, interval: DefaultInterval, progress: LogProgress, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	hasher := sha256.New()
	buf := make([]byte, o.chunkSize)

	start := o.now()
	lastReport, lastRead := start, int64(0)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, fmt.Errorf("hashing of %s cancelled: %w", name, err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			read += int64(n)
		}

		if err == io.EOF {
			break
		} else if err != nil {
			return Digest{}, fmt.Errorf("failed to read %s: %w", name, err)
		}

		if o.progress == nil {
			continue
		}

		if now := o.now(); now.Sub(lastReport) >= o.interval {
			o.progress(newProgress(name, read, total, read-lastRead, now.Sub(lastReport), now.Sub(start), false))
			lastReport, lastRead = now, read
		}
	}

	if o.progress != nil {
		now := o.now()
		o.progress(newProgress(name, read, total, read-lastRead, now.Sub(lastReport), now.Sub(start), true))
	}

	return Digest{ID: hex.EncodeToString(hasher.Sum(nil)), Size: read}, nil
}

func newProgress(name string, read, total, window int64, windowDur, elapsed time.Duration, done bool) Progress {
	p := Progress{Name: name, Read: read, Total: total, Elapsed: elapsed, Done: done}
	if windowDur > 0 {
		p.Throughput = float64(window) / windowDur.Seconds()
	}

	if !done && total > read && elapsed > 0 && read > 0 {
		avg := float64(read) / elapsed.Seconds()
		p.Remaining = time.Duration(float64(total-read) / avg * float64(time.Second))
	}

	return p
}

// LogProgress is the default progress reporter, which emits each
// notice via the package logger.
func LogProgress(p Progress) {
	if p.Done {
		log.Emit(logger.VERBOSE, "Hashed %s (%s) in %s\n", p.Name, humanize.IBytes(uint64(p.Read)), p.Elapsed.Round(time.Millisecond))
		return
	}

	log.Emit(logger.INFO, "Hashing %s: %s / %s (%s/s), elapsed %s, ETA %s\n",
		p.Name,
		humanize.IBytes(uint64(p.Read)),
		humanize.IBytes(uint64(p.Total)),
		humanize.IBytes(uint64(p.Throughput)),
		p.Elapsed.Round(time.Second),
		p.Remaining.Round(time.Second),
	)
}
