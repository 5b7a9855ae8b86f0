package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Reader      ReaderConfig    `yaml:"reader"`
	Synth       SynthConfig     `yaml:"synth"`
	Agent       AgentConfig     `yaml:"agent"`
	Notes       NotesConfig     `yaml:"notes"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type ReaderConfig struct {
	ContextRadius int  `yaml:"context_radius"`
	MaxDocumentKB int  `yaml:"max_document_kb"`
	PublishCursor bool `yaml:"publish_cursor"`
}

type SynthConfig struct {
	Mode        string `yaml:"mode"` // mock, exec
	Command     string `yaml:"command"`
	Voice       string `yaml:"voice"`
	WordDelayMS int    `yaml:"word_delay_ms"`
}

type AgentConfig struct {
	Endpoint          string `yaml:"endpoint"`
	AgentID           string `yaml:"agent_id"`
	CredentialEnv     string `yaml:"credential_env"`
	OpenTimeoutMS     int    `yaml:"open_timeout_ms"`
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
	ReconnectDelayMS  int    `yaml:"reconnect_delay_ms"`
}

type NotesConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

func Default() Config {
	return Config{
		RuntimeName: "lector-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Reader: ReaderConfig{
			ContextRadius: 50,
			MaxDocumentKB: 4096,
			PublishCursor: true,
		},
		Synth: SynthConfig{
			Mode:        "mock",
			Voice:       "en-US",
			WordDelayMS: 250,
		},
		Agent: AgentConfig{
			Endpoint:          "wss://localhost:8443/session",
			AgentID:           "book-assistant",
			CredentialEnv:     "LECTOR_AGENT_CREDENTIAL",
			OpenTimeoutMS:     5000,
			ReconnectAttempts: 5,
			ReconnectDelayMS:  1000,
		},
		Notes: NotesConfig{
			Path:       "./data/lector-notes.db",
			Collection: "reader-notes",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LECTOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LECTOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LECTOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LECTOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LECTOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LECTOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LECTOR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LECTOR_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LECTOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LECTOR_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LECTOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LECTOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LECTOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LECTOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LECTOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LECTOR_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Reader.ContextRadius, "LECTOR_READER_CONTEXT_RADIUS")
	overrideInt(&cfg.Reader.MaxDocumentKB, "LECTOR_READER_MAX_DOCUMENT_KB")
	overrideBool(&cfg.Reader.PublishCursor, "LECTOR_READER_PUBLISH_CURSOR")
	overrideString(&cfg.Synth.Mode, "LECTOR_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "LECTOR_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Voice, "LECTOR_SYNTH_VOICE")
	overrideInt(&cfg.Synth.WordDelayMS, "LECTOR_SYNTH_WORD_DELAY_MS")
	overrideString(&cfg.Agent.Endpoint, "LECTOR_AGENT_ENDPOINT")
	overrideString(&cfg.Agent.AgentID, "LECTOR_AGENT_ID")
	overrideString(&cfg.Agent.CredentialEnv, "LECTOR_AGENT_CREDENTIAL_ENV")
	overrideInt(&cfg.Agent.OpenTimeoutMS, "LECTOR_AGENT_OPEN_TIMEOUT_MS")
	overrideInt(&cfg.Agent.ReconnectAttempts, "LECTOR_AGENT_RECONNECT_ATTEMPTS")
	overrideInt(&cfg.Agent.ReconnectDelayMS, "LECTOR_AGENT_RECONNECT_DELAY_MS")
	overrideString(&cfg.Notes.Path, "LECTOR_NOTES_PATH")
	overrideString(&cfg.Notes.Collection, "LECTOR_NOTES_COLLECTION")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Reader.ContextRadius <= 0 {
		return errors.New("reader.context_radius must be positive")
	}
	if cfg.Reader.MaxDocumentKB <= 0 {
		return errors.New("reader.max_document_kb must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.WordDelayMS < 0 {
		return errors.New("synth.word_delay_ms must be >= 0")
	}
	if cfg.Agent.Endpoint == "" {
		return errors.New("agent.endpoint must not be empty")
	}
	if cfg.Agent.AgentID == "" {
		return errors.New("agent.agent_id must not be empty")
	}
	if cfg.Agent.OpenTimeoutMS <= 0 {
		return errors.New("agent.open_timeout_ms must be positive")
	}
	if cfg.Agent.ReconnectAttempts < 0 {
		return errors.New("agent.reconnect_attempts must be >= 0")
	}
	if cfg.Agent.ReconnectDelayMS < 0 {
		return errors.New("agent.reconnect_delay_ms must be >= 0")
	}
	if cfg.Notes.Path == "" {
		return errors.New("notes.path must not be empty")
	}
	if cfg.Notes.Collection == "" {
		return errors.New("notes.collection must not be empty")
	}
	return nil
}
