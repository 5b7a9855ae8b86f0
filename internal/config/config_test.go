package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Reader.ContextRadius != 50 {
		t.Fatalf("expected default context radius 50, got %d", cfg.Reader.ContextRadius)
	}
	if cfg.Agent.ReconnectAttempts != 5 || cfg.Agent.ReconnectDelayMS != 1000 {
		t.Fatalf("unexpected default reconnect policy: %+v", cfg.Agent)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LECTOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LECTOR_BUS_USERNAME", "alice")
	t.Setenv("LECTOR_BUS_PASSWORD", "secret")
	t.Setenv("LECTOR_READER_CONTEXT_RADIUS", "25")
	t.Setenv("LECTOR_SYNTH_MODE", "exec")
	t.Setenv("LECTOR_SYNTH_COMMAND", "piper --stdin")
	t.Setenv("LECTOR_AGENT_ENDPOINT", "wss://agent.example.com/session")
	t.Setenv("LECTOR_AGENT_ID", "agent-42")
	t.Setenv("LECTOR_AGENT_RECONNECT_ATTEMPTS", "3")
	t.Setenv("LECTOR_AGENT_RECONNECT_DELAY_MS", "250")
	t.Setenv("LECTOR_NOTES_PATH", "./tmp-notes.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Reader.ContextRadius != 25 {
		t.Fatalf("expected context radius override, got %d", cfg.Reader.ContextRadius)
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command != "piper --stdin" {
		t.Fatalf("expected synth override, got %+v", cfg.Synth)
	}
	if cfg.Agent.Endpoint != "wss://agent.example.com/session" {
		t.Fatalf("expected agent endpoint override")
	}
	if cfg.Agent.AgentID != "agent-42" {
		t.Fatalf("expected agent id override")
	}
	if cfg.Agent.ReconnectAttempts != 3 || cfg.Agent.ReconnectDelayMS != 250 {
		t.Fatalf("expected reconnect policy override, got %+v", cfg.Agent)
	}
	if cfg.Notes.Path != "./tmp-notes.db" {
		t.Fatalf("expected notes path override")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("LECTOR_SYNTH_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
