package synth

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecSynth shells out to a TTS command for each word. The utterance text
// is appended as the final argument; the command exits when the word has been
// spoken (the contract of tools like `say`, `espeak`, or a piper wrapper).
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, args[0])
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Speak(ctx context.Context, utt Utterance) (<-chan struct{}, <-chan error) {
	done := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)

		// One process at a time: overlapping utterances would overlap audio.
		e.mu.Lock()
		defer e.mu.Unlock()

		if ctx.Err() != nil {
			errs <- ctx.Err()
			return
		}

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		for i, a := range args {
			args[i] = strings.ReplaceAll(a, "{voice}", utt.Voice)
		}
		args = append(args, utt.Text)

		cmd := exec.CommandContext(ctx, base, args...)
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			errs <- fmt.Errorf("synth command failed: %w", err)
			return
		}
		close(done)
	}()
	return done, errs
}
