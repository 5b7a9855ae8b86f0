package synth

import (
	"context"
	"errors"
)

// ErrUnavailable reports that no working synthesizer backend exists.
var ErrUnavailable = errors.New("speech synthesizer unavailable")

// Utterance is a single word to vocalize.
type Utterance struct {
	Text  string
	Voice string
}

// Synthesizer vocalizes one utterance at a time. The done channel closes when
// the utterance has been fully spoken; errs receives at most one error.
// Cancellation happens through ctx; after cancellation neither channel is
// required to fire.
type Synthesizer interface {
	Speak(ctx context.Context, utt Utterance) (done <-chan struct{}, errs <-chan error)
}
