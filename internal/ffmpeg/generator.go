// Package ffmpeg produces the derivatives of a video file which accompany
// it in to the store: a single cover frame, and the video's duration.
package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/google/uuid"
	"github.com/hbomb79/Stash/internal/digest"
	"github.com/hbomb79/Stash/pkg/logger"
)

var log = logger.Get("FFmpeg")

const DefaultCoverOffset = "00:00:05.000"

type (
	Config struct {
		FfmpegBinPath  string        `yaml:"ffmpeg_binary" env:"FORMAT_FFMPEG_BINARY_PATH" env-default:"ffmpeg"`
		FfprobeBinPath string        `yaml:"ffprobe_binary" env:"FORMAT_FFPROBE_BINARY_PATH" env-default:"ffprobe"`
		ScratchDir     string        `yaml:"scratch_path" env:"FORMAT_SCRATCH_PATH" env-required:"true"`
		Timeout        time.Duration `yaml:"timeout" env:"FORMAT_TIMEOUT" env-default:"2m"`
		CoverOffset    string        `yaml:"cover_offset" env:"FORMAT_COVER_OFFSET" env-default:"00:00:05.000"`
	}

	// Cover is a freshly generated cover image. The file at Path lives in
	// the scratch directory until it is placed in the store (or discarded).
	Cover struct {
		Path string
		ID   string
		Size int64
	}

	Generator struct {
		config Config
	}
)

func NewGenerator(config Config) (*Generator, error) {
	if config.ScratchDir == "" {
		return nil, fmt.Errorf("ffmpeg scratch directory must be provided")
	}
	if err := os.MkdirAll(config.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if config.FfmpegBinPath == "" {
		config.FfmpegBinPath = "ffmpeg"
	}
	if config.FfprobeBinPath == "" {
		config.FfprobeBinPath = "ffprobe"
	}
	if config.CoverOffset == "" {
		config.CoverOffset = DefaultCoverOffset
	}

	return &Generator{config: config}, nil
}

// MakeCover extracts a single frame from the video (at the configured
// offset) in to a uniquely named PNG inside the scratch directory, and
// digests the result.
func (gen *Generator) MakeCover(ctx context.Context, videoPath string) (*Cover, error) {
	coverPath := filepath.Join(gen.config.ScratchDir, fmt.Sprintf("%s.png", uuid.NewString()))
	log.Emit(logger.DEBUG, "Generating cover for %s to %s\n", videoPath, coverPath)

	ctx, cancel := gen.withTimeout(ctx)
	defer cancel()

	args := []string{"-ss", gen.config.CoverOffset, "-i", videoPath, "-vframes", "1", coverPath, "-y"}
	cmd := exec.CommandContext(ctx, gen.config.FfmpegBinPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(coverPath)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cover generation for %s did not complete: %w", videoPath, ctx.Err())
		}

		return nil, &Error{Args: args, Output: string(out), Err: err}
	}

	result, err := digest.File(ctx, coverPath, digest.WithProgress(nil, 0))
	if err != nil {
		_ = os.Remove(coverPath)
		return nil, fmt.Errorf("failed to digest cover %s: %w", coverPath, err)
	}

	return &Cover{Path: coverPath, ID: result.ID, Size: result.Size}, nil
}

// ProbeDuration returns the duration of the video in whole seconds (floored).
// Any failure to probe the file is logged and reported as a duration of zero.
func (gen *Generator) ProbeDuration(ctx context.Context, videoPath string) int {
	ctx, cancel := gen.withTimeout(ctx)
	defer cancel()

	type probeResult struct {
		duration string
		err      error
	}

	// The transcoder offers no way to cancel a probe. When the timeout
	// elapses the result is abandoned, and the ffprobe process (and this
	// goroutine) are left to finish on their own.
	done := make(chan probeResult, 1)
	go func() {
		metadata, err := ffmpeg.New(&ffmpeg.Config{FfprobeBinPath: gen.config.FfprobeBinPath}).Input(videoPath).GetMetadata()
		if err != nil {
			done <- probeResult{err: err}
			return
		}

		done <- probeResult{duration: metadata.GetFormat().GetDuration()}
	}()

	select {
	case <-ctx.Done():
		log.Emit(logger.WARNING, "Probe of %s did not complete: %v\n", videoPath, ctx.Err())
		return 0
	case res := <-done:
		if res.err != nil {
			log.Emit(logger.WARNING, "Failed to probe %s: %v\n", videoPath, res.err)
			return 0
		}

		seconds, err := ParseDuration(res.duration)
		if err != nil {
			log.Emit(logger.WARNING, "Probe of %s returned unusable duration %q: %v\n", videoPath, res.duration, err)
			return 0
		}

		return seconds
	}
}

func (gen *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if gen.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, gen.config.Timeout)
}

// ParseDuration floors the decimal seconds reported by ffprobe (e.g. "93.480000")
// to a whole number of seconds.
func ParseDuration(raw string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("duration %q out of range", raw)
	}

	return int(math.Floor(f)), nil
}
