package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

const DefaultBinary = "ffmpeg"

// commandRunner exécute binary args dans dir. Remplaçable en test.
type commandRunner func(ctx context.Context, dir, binary string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, dir, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Muxer pilote le binaire ffmpeg (copie de flux uniquement, jamais de réencodage).
type Muxer struct {
	binary string
	logger zerolog.Logger
	run    commandRunner
}

var _ ports.Muxer = (*Muxer)(nil)

func NewMuxer(binary string, logger zerolog.Logger) *Muxer {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Muxer{
		binary: binary,
		logger: logger.With().Str("component", "ffmpeg").Logger(),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injecte un runner (tests).
func (m *Muxer) WithCommandRunner(r commandRunner) *Muxer {
	if m != nil && r != nil {
		m.run = r
	}
	return m
}

func (m *Muxer) Mux(ctx context.Context, req ports.MuxRequest) error {
	if m == nil {
		return fmt.Errorf("%w: muxer not initialized", domain.ErrMux)
	}
	args, err := BuildArgs(req)
	if err != nil {
		return err
	}

	out, err := m.run(ctx, req.WorkDir, m.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Debug().Str("output", req.Output).Str("log", tail(out, 2048)).Msg("ffmpeg failed")
		return fmt.Errorf("%w: ffmpeg %s: %v", domain.ErrMux, req.Output, err)
	}
	m.logger.Debug().Strs("inputs", req.Inputs).Str("output", req.Output).Msg("ffmpeg done")
	return nil
}

// BuildArgs traduit une MuxRequest en ligne de commande ffmpeg.
func BuildArgs(req ports.MuxRequest) ([]string, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", domain.ErrMux)
	}
	if strings.TrimSpace(req.Output) == "" {
		return nil, fmt.Errorf("%w: no output", domain.ErrMux)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}
	for _, in := range req.Inputs {
		if strings.HasSuffix(strings.ToLower(in), ".m3u8") {
			// Les segments locaux peuvent avoir n'importe quelle extension.
			args = append(args, "-allowed_extensions", "ALL")
		}
		args = append(args, "-i", in)
	}
	if len(req.Inputs) > 1 {
		for i := range req.Inputs {
			args = append(args, "-map", strconv.Itoa(i))
		}
	}

	switch req.Copy {
	case ports.CopyVideo:
		args = append(args, "-c:v", "copy")
	case ports.CopyAudio:
		args = append(args, "-c:a", "copy")
	default:
		args = append(args, "-c", "copy")
	}

	for i, a := range req.Attachments {
		args = append(args, "-attach", a.Path, "-metadata:s:t:"+strconv.Itoa(i), "mimetype="+a.MimeType)
	}
	args = append(args, req.Output)
	return args, nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
