package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	wordDelay time.Duration
}

// NewMockSynth returns a synthesizer that pretends each word takes wordDelay
// to speak. Used in tests and as the default backend.
func NewMockSynth(wordDelay time.Duration) Synthesizer {
	return &mockSynth{wordDelay: wordDelay}
}

func (m *mockSynth) Speak(ctx context.Context, utt Utterance) (<-chan struct{}, <-chan error) {
	done := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(m.wordDelay):
		}
		close(done)
	}()
	return done, errs
}
