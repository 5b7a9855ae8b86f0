package reader

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/lectorlabs/lector-core/internal/agent"
	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/ingest"
	"github.com/lectorlabs/lector-core/internal/notes"
	"github.com/lectorlabs/lector-core/internal/notify"
	"github.com/lectorlabs/lector-core/internal/playback"
	"github.com/lectorlabs/lector-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service is the bus-facing command surface: it decodes reader.cmd.* messages
// and drives the playback machine, the note log, and the voice session.
type Service struct {
	cfg           config.ReaderConfig
	credentialEnv string
	bus           *bus.Client
	machine       *playback.Machine
	notes         *notes.Store
	sessions      *agent.Manager
	notifier      notify.Notifier
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
}

func NewService(parent context.Context, cfg config.ReaderConfig, credentialEnv string, busClient *bus.Client, machine *playback.Machine, noteStore *notes.Store, sessions *agent.Manager, notifier notify.Notifier, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:           cfg,
		credentialEnv: credentialEnv,
		bus:           busClient,
		machine:       machine,
		notes:         noteStore,
		sessions:      sessions,
		notifier:      notifier,
		logger:        log.With(slog.String("component", "reader-service")),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (s *Service) Start() error {
	handlers := []struct {
		subject string
		fn      nats.MsgHandler
	}{
		{protocol.SubjectCmdLoad, s.handleLoad},
		{protocol.SubjectCmdToggle, s.handleToggle},
		{protocol.SubjectCmdSeek, s.handleSeek},
		{protocol.SubjectCmdReplay, s.handleReplay},
		{protocol.SubjectCmdNoteAdd, s.handleNoteAdd},
		{protocol.SubjectCmdNoteDelete, s.handleNoteDelete},
		{protocol.SubjectCmdSessionStart, s.handleSessionStart},
		{protocol.SubjectCmdSessionStop, s.handleSessionStop},
	}
	for _, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(h.subject, h.fn)
		if err != nil {
			s.drainSubs()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drainSubs()
	s.wg.Wait()
	s.machine.Stop()
	s.sessions.Stop()
}

func (s *Service) Healthy() bool {
	return len(s.subs) > 0
}

func (s *Service) drainSubs() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
}

func (s *Service) handleLoad(msg *nats.Msg) {
	var req protocol.LoadDocument
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode load command", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		text := req.Text
		if text == "" && req.Path != "" {
			var err error
			text, err = ingest.ReadDocument(req.Path, s.cfg.MaxDocumentKB)
			if err != nil {
				s.logger.Warn("failed to ingest document", slogError(err))
				s.notifier.Notify("Failed to load document", err.Error(), notify.SeverityDestructive)
				return
			}
		}
		s.machine.Load(text)
		s.logger.Info("document loaded", slog.Int("tokens", s.machine.Len()))
	}()
}

func (s *Service) handleToggle(_ *nats.Msg) {
	s.machine.Toggle()
}

func (s *Service) handleSeek(msg *nats.Msg) {
	var req protocol.Seek
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode seek command", slogError(err))
		return
	}
	s.machine.Seek(req.Position)
}

func (s *Service) handleReplay(_ *nats.Msg) {
	s.machine.Replay()
}

func (s *Service) handleNoteAdd(msg *nats.Msg) {
	var req protocol.AddNote
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode note command", slogError(err))
		return
	}

	// The context snapshot is captured at creation time, not at read time.
	window := s.machine.Window()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rec, err := s.notes.Add(s.ctx, req.Text, window)
		if err != nil {
			if errors.Is(err, notes.ErrEmptyNote) {
				s.notifier.Notify("Empty note", "Write something before saving a note.", notify.SeverityDestructive)
				return
			}
			s.logger.Warn("failed to append note", slogError(err))
			s.notifier.Notify("Failed to save note", err.Error(), notify.SeverityDestructive)
			return
		}
		s.logger.Info("note saved", slog.String("id", rec.ID))
	}()
}

func (s *Service) handleNoteDelete(msg *nats.Msg) {
	var req protocol.DeleteNote
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode note delete command", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.notes.Delete(s.ctx, req.ID); err != nil {
			s.logger.Warn("failed to delete note", slogError(err))
		}
	}()
}

func (s *Service) handleSessionStart(msg *nats.Msg) {
	var req protocol.StartSession
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode session start command", slogError(err))
		return
	}

	credential := req.Credential
	if credential == "" && s.credentialEnv != "" {
		credential = os.Getenv(s.credentialEnv)
	}
	seed := s.machine.Window()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sessions.Start(s.ctx, credential, seed); err != nil {
			// Already recovered and surfaced by the session manager.
			s.logger.Warn("session start rejected", slogError(err))
		}
	}()
}

func (s *Service) handleSessionStop(_ *nats.Msg) {
	s.sessions.Stop()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
