package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiazzi/clara/internal/audio"
)

type LocalConfig struct {
	CLI   string
	Voice string
}

// LocalProvider synthesizes speech offline with an espeak-ng compatible
// CLI. Output is a WAV file read back from a temp directory, matching
// the rest of the service's audio/wav contract.
type LocalProvider struct {
	cliPath string
	voice   string
}

func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	cli := strings.TrimSpace(cfg.CLI)
	if cli == "" {
		cli = "espeak-ng"
	}
	path, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("local tts cli %q not found: %w", cli, err)
	}
	return &LocalProvider{cliPath: path, voice: strings.TrimSpace(cfg.Voice)}, nil
}

func (p *LocalProvider) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.Mode != ModeLocal {
		return Result{}, &InvalidParamsError{Reason: fmt.Sprintf("mode %q is not the local mode", req.Mode)}
	}

	tmpDir, err := os.MkdirTemp("", "clara-tts-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "out.wav")
	cmd := exec.CommandContext(ctx, p.cliPath, localArgs(req, p.voice, wavPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: local synthesis timed out", ErrProviderUnreachable)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Result{}, fmt.Errorf("%w: %s", ErrProviderUnreachable, detail)
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read output: %v", ErrProviderUnreachable, err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty output file", ErrProviderUnreachable)
	}

	return Result{Audio: data, ContentType: audio.ContentTypeWAV}, nil
}

// localArgs maps the request to espeak-ng flags. Volume 0..1 scales to
// the engine's 0..200 amplitude range.
func localArgs(req Request, voice, wavPath string) []string {
	amplitude := int(math.Round(req.Volume * 200))
	args := []string{
		"-s", strconv.Itoa(req.Rate),
		"-a", strconv.Itoa(amplitude),
		"-w", wavPath,
	}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	return append(args, "--", req.Text)
}
