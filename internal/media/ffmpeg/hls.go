package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

const (
	PlaylistName   = "playlist.m3u8"
	SegmentPattern = "segment_%03d.ts"
)

type HLSConfig struct {
	Binary         string
	SegmentSeconds int
	VideoPreset    string
	Logger         zerolog.Logger
}

// HLSTranscoder turns one upload into a VOD playlist plus MPEG-TS segments.
type HLSTranscoder struct {
	cfg    HLSConfig
	logger zerolog.Logger
}

func NewHLSTranscoder(cfg HLSConfig) *HLSTranscoder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 6
	}
	if cfg.VideoPreset == "" {
		cfg.VideoPreset = "veryfast"
	}
	return &HLSTranscoder{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "ffmpeg").Logger(),
	}
}

func (t *HLSTranscoder) Transcode(ctx context.Context, input string, kind models.MediaKind, outDir string) error {
	args, err := t.buildArgs(input, kind, outDir)
	if err != nil {
		return err
	}

	t.logger.Debug().Str("command", t.cfg.Binary+" "+strings.Join(args, " ")).Msg("running ffmpeg")

	started := time.Now()
	out, err := exec.CommandContext(ctx, t.cfg.Binary, args...).CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(tail(out))))
	}

	t.logger.Debug().Dur("took", time.Since(started)).Str("out_dir", outDir).Msg("ffmpeg finished")
	return nil
}

func (t *HLSTranscoder) buildArgs(input string, kind models.MediaKind, outDir string) ([]string, error) {
	seg := strconv.Itoa(t.cfg.SegmentSeconds)

	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input}

	switch kind {
	case models.Video:
		args = append(args, "-map", "0:v:0", "-map", "0:a:0")
		args = append(args, t.videoArgs(seg)...)
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-ac", "2")
	case models.VideoWithoutAudio:
		args = append(args, "-map", "0:v:0", "-an")
		args = append(args, t.videoArgs(seg)...)
	case models.Audio:
		args = append(args, "-map", "0:a:0", "-vn", "-c:a", "aac", "-b:a", "192k", "-ac", "2")
	default:
		return nil, errors.New("unknown media kind " + strconv.Quote(string(kind)))
	}

	args = append(args,
		"-hls_time", seg,
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, SegmentPattern),
		"-f", "hls",
		filepath.Join(outDir, PlaylistName),
	)
	return args, nil
}

func (t *HLSTranscoder) videoArgs(seg string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", t.cfg.VideoPreset,
		"-pix_fmt", "yuv420p",
		"-sc_threshold", "0",
		"-force_key_frames", "expr:gte(t,n*" + seg + ")",
	}
}
