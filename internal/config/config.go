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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Channel     ChannelConfig     `yaml:"channel"`
	Bus         BusConfig         `yaml:"bus"`
	Backend     BackendConfig     `yaml:"backend"`
	Credentials CredentialsConfig `yaml:"credentials"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Drafts      DraftsConfig      `yaml:"drafts"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Locale      LocaleConfig      `yaml:"locale"`
	Verify      VerifyConfig      `yaml:"verify"`
}

// ChannelConfig selects how sessions reach the generation service.
type ChannelConfig struct {
	Transport      string `yaml:"transport"` // mock, websocket, nats, exec
	URL            string `yaml:"url"`
	Command        string `yaml:"command"`
	SubjectPrefix  string `yaml:"subject_prefix"`
	ConnectTimeout int    `yaml:"connect_timeout_ms"`
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

// BackendConfig controls the simulated generation service served on the bus.
type BackendConfig struct {
	Enabled     bool   `yaml:"enabled"`
	StepMS      int    `yaml:"step_ms"`
	AudioPrefix string `yaml:"audio_prefix"`
}

type CredentialsConfig struct {
	EnvFile string `yaml:"env_file"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type DraftsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultsConfig seeds the preferences of a fresh client.
type DefaultsConfig struct {
	Name                 string   `yaml:"name"`
	Tagline              string   `yaml:"tagline"`
	Instructions         string   `yaml:"instructions"`
	LongForm             bool     `yaml:"long_form"`
	Creativity           float64  `yaml:"creativity"`
	RolesPerson1         string   `yaml:"roles_person1"`
	RolesPerson2         string   `yaml:"roles_person2"`
	ConversationStyles   []string `yaml:"conversation_styles"`
	DialogueStructure    []string `yaml:"dialogue_structure"`
	EngagementTechniques []string `yaml:"engagement_techniques"`
	TTSModel             string   `yaml:"tts_model"`
}

// CatalogConfig holds the seed option lists offered for each category.
type CatalogConfig struct {
	ConversationStyles   []string `yaml:"conversation_styles"`
	DialogueStructure    []string `yaml:"dialogue_structure"`
	EngagementTechniques []string `yaml:"engagement_techniques"`
}

type LocaleConfig struct {
	Language string `yaml:"language"`
}

type VerifyConfig struct {
	Model string `yaml:"model"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-podcast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8780,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Channel: ChannelConfig{
			Transport:      "mock",
			URL:            "ws://localhost:8080/generate",
			SubjectPrefix:  "podcast.session",
			ConnectTimeout: 10000,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Backend: BackendConfig{
			Enabled:     false,
			StepMS:      250,
			AudioPrefix: "/audio",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/podcast-history.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Drafts: DraftsConfig{
			Enabled: true,
			Path:    "./data/podcast-drafts.db",
		},
		Defaults: DefaultsConfig{
			Creativity:           0.7,
			RolesPerson1:         "Interviewer",
			RolesPerson2:         "Subject matter expert",
			ConversationStyles:   []string{"Engaging", "Fast-paced", "Enthusiastic"},
			DialogueStructure:    []string{"Discussions"},
			EngagementTechniques: []string{"Questions"},
			TTSModel:             "geminimulti",
		},
		Catalog: CatalogConfig{
			ConversationStyles:   []string{"Engaging", "Fast-paced", "Enthusiastic", "Educational", "Casual", "Professional", "Friendly"},
			DialogueStructure:    []string{"Topic Introduction", "Summary", "Discussions", "Q&A", "Farewell"},
			EngagementTechniques: []string{"Questions", "Testimonials", "Quotes", "Anecdotes", "Analogies", "Humor"},
		},
		Locale: LocaleConfig{
			Language: "en",
		},
		Verify: VerifyConfig{
			Model: "gemini-2.5-flash",
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
	overrideString(&cfg.RuntimeName, "PODCAST_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PODCAST_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PODCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PODCAST_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PODCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PODCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PODCAST_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Channel.Transport, "PODCAST_CHANNEL_TRANSPORT")
	overrideString(&cfg.Channel.URL, "PODCAST_CHANNEL_URL")
	overrideString(&cfg.Channel.Command, "PODCAST_CHANNEL_COMMAND")
	overrideString(&cfg.Channel.SubjectPrefix, "PODCAST_CHANNEL_SUBJECT_PREFIX")
	overrideInt(&cfg.Channel.ConnectTimeout, "PODCAST_CHANNEL_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Embedded, "PODCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PODCAST_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PODCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PODCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PODCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PODCAST_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PODCAST_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PODCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Backend.Enabled, "PODCAST_BACKEND_ENABLED")
	overrideInt(&cfg.Backend.StepMS, "PODCAST_BACKEND_STEP_MS")
	overrideString(&cfg.Backend.AudioPrefix, "PODCAST_BACKEND_AUDIO_PREFIX")
	overrideString(&cfg.Credentials.EnvFile, "PODCAST_CREDENTIALS_ENV_FILE")
	overrideString(&cfg.EventStore.Path, "PODCAST_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "PODCAST_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "PODCAST_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "PODCAST_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "PODCAST_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Drafts.Enabled, "PODCAST_DRAFTS_ENABLED")
	overrideString(&cfg.Drafts.Path, "PODCAST_DRAFTS_PATH")
	overrideString(&cfg.Defaults.TTSModel, "PODCAST_DEFAULTS_TTS_MODEL")
	overrideFloat(&cfg.Defaults.Creativity, "PODCAST_DEFAULTS_CREATIVITY")
	overrideBool(&cfg.Defaults.LongForm, "PODCAST_DEFAULTS_LONG_FORM")
	overrideString(&cfg.Locale.Language, "PODCAST_LOCALE_LANGUAGE")
	overrideString(&cfg.Verify.Model, "PODCAST_VERIFY_MODEL")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// NeedsBus reports whether the configuration requires a NATS connection.
func (c Config) NeedsBus() bool {
	return c.Channel.Transport == "nats" || c.Backend.Enabled
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Channel.Transport {
	case "mock":
	case "websocket":
		if cfg.Channel.URL == "" {
			return errors.New("channel.url must be set when transport=websocket")
		}
	case "nats":
		if cfg.Channel.SubjectPrefix == "" {
			return errors.New("channel.subject_prefix must be set when transport=nats")
		}
	case "exec":
		if cfg.Channel.Command == "" {
			return errors.New("channel.command must be set when transport=exec")
		}
	default:
		return errors.New("channel.transport must be one of mock|websocket|nats|exec")
	}
	if cfg.Channel.ConnectTimeout <= 0 {
		return errors.New("channel.connect_timeout_ms must be positive")
	}
	if cfg.NeedsBus() {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Backend.Enabled && cfg.Backend.StepMS < 0 {
		return errors.New("backend.step_ms must be >= 0")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Drafts.Enabled && cfg.Drafts.Path == "" {
		return errors.New("drafts.path must not be empty when drafts are enabled")
	}
	if !(cfg.Defaults.Creativity >= 0 && cfg.Defaults.Creativity <= 1) {
		return errors.New("defaults.creativity must be between 0 and 1")
	}
	switch cfg.Defaults.TTSModel {
	case "geminimulti", "edge", "openai", "elevenlabs":
	default:
		return errors.New("defaults.tts_model must be one of geminimulti|edge|openai|elevenlabs")
	}
	if cfg.Locale.Language == "" {
		return errors.New("locale.language must not be empty")
	}
	return nil
}
