package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lectorlabs/lector-core/internal/agent"
	"github.com/lectorlabs/lector-core/internal/bus"
	"github.com/lectorlabs/lector-core/internal/config"
	"github.com/lectorlabs/lector-core/internal/natsserver"
	"github.com/lectorlabs/lector-core/internal/notes"
	"github.com/lectorlabs/lector-core/internal/notify"
	"github.com/lectorlabs/lector-core/internal/playback"
	"github.com/lectorlabs/lector-core/internal/protocol"
	"github.com/lectorlabs/lector-core/internal/reader"
	"github.com/lectorlabs/lector-core/internal/synth"
	"github.com/lectorlabs/lector-core/internal/viewport"
)

// Runtime assembles the read-aloud daemon: embedded bus, playback machine,
// note log, voice session manager, and the bus-facing command service.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	noteStore, err := notes.Open(ctx, r.cfg.Notes, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open note store: %w", err)
	}
	defer func() {
		if err := noteStore.Close(); err != nil {
			r.logger.Error("note store close error", slogError(err))
		}
	}()

	notifier := notify.NewBusNotifier(busClient, r.logger)

	synthesizer, err := buildSynth(r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}

	machine := playback.NewMachine(synthesizer, r.cfg.Synth.Voice, r.cfg.Reader.ContextRadius, notifier, r.logger)
	defer machine.Stop()

	if r.cfg.Reader.PublishCursor {
		viewport.NewPublisher(busClient, machine, r.logger).Attach()
	}

	transport := agent.NewWSTransport(r.cfg.Agent.Endpoint, r.logger)
	sessions := agent.NewManager(r.cfg.Agent, transport, agent.StaticMicrophone{}, notifier, r.logger)
	sessions.OnStatus(func(sessionID string, status agent.Status, speaking bool) {
		publishSessionStatus(busClient, r.logger, sessionID, status, speaking)
	})
	defer sessions.Stop()

	svc := reader.NewService(ctx, r.cfg.Reader, r.cfg.Agent.CredentialEnv, busClient, machine, noteStore, sessions, notifier, r.logger)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start reader service: %w", err)
	}
	defer svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	var metricsServer *http.Server
	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slogError(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slogError(err))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

func buildSynth(cfg config.SynthConfig) (synth.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecSynth(cfg.Command)
	default:
		return synth.NewMockSynth(time.Duration(cfg.WordDelayMS) * time.Millisecond), nil
	}
}

func publishSessionStatus(busClient *bus.Client, log *slog.Logger, sessionID string, status agent.Status, speaking bool) {
	payload := protocol.SessionStatus{
		SessionID: sessionID,
		Status:    string(status),
		Speaking:  speaking,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("failed to encode session status", slogError(err))
		return
	}
	if err := busClient.Conn().Publish(protocol.SubjectSessionStatus, data); err != nil {
		log.Warn("failed to publish session status", slogError(err))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
