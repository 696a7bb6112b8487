package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

var ErrNoMediaStreams = errors.New("no audio or video streams")

// Prober classifies uploads with ffprobe.
type Prober struct {
	binary string
	logger zerolog.Logger
}

func NewProber(binary string, logger zerolog.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{
		binary: binary,
		logger: logger.With().Str("component", "ffprobe").Logger(),
	}
}

// Classify reports whether path holds audio, video with sound or silent video.
// Cover art attached to audio files is not counted as a video stream.
func (p *Prober) Classify(ctx context.Context, path string) (models.MediaKind, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "stream=codec_type:stream_disposition=attached_pic",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Debug().Str("path", path).Bytes("stderr", tail(exitErr.Stderr)).Msg("ffprobe rejected input")
		}
		return "", fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

type probeOutput struct {
	Streams []struct {
		CodecType   string `json:"codec_type"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

func parseProbe(out []byte) (models.MediaKind, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return "", fmt.Errorf("decode ffprobe output: %w", err)
	}

	var hasVideo, hasAudio bool
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if s.Disposition.AttachedPic == 0 {
				hasVideo = true
			}
		case "audio":
			hasAudio = true
		}
	}

	switch {
	case hasVideo && hasAudio:
		return models.Video, nil
	case hasVideo:
		return models.VideoWithoutAudio, nil
	case hasAudio:
		return models.Audio, nil
	default:
		return "", ErrNoMediaStreams
	}
}

func tail(b []byte) []byte {
	const limit = 2 << 10
	if len(b) > limit {
		return b[len(b)-limit:]
	}
	return b
}
