package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultLanguage         = "en"
	DefaultRate             = 0.9
	DefaultPitch            = 1.1
	DefaultUtteranceTimeout = 15 * time.Second
	DefaultCoachTimeout     = 4 * time.Second
	DefaultVisionTimeout    = 10 * time.Second
	DefaultSampleRate       = 16000
	DefaultStatsPrefix      = "readalong"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"vosk", "deepgram"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Speech.Backend == "" {
		cfg.Speech.Backend = SpeechBrowser
	}
	if cfg.Speech.Rate == 0 {
		cfg.Speech.Rate = DefaultRate
	}
	if cfg.Speech.Pitch == 0 {
		cfg.Speech.Pitch = DefaultPitch
	}
	if cfg.Speech.UtteranceTimeout == 0 {
		cfg.Speech.UtteranceTimeout = DefaultUtteranceTimeout
	}
	if cfg.Coach.Timeout == 0 {
		cfg.Coach.Timeout = DefaultCoachTimeout
	}
	if cfg.Lessons.DefaultLanguage == "" {
		cfg.Lessons.DefaultLanguage = DefaultLanguage
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
	if cfg.LetterStats.Backend == "" {
		cfg.LetterStats.Backend = StatsMemory
	}
	if cfg.LetterStats.Prefix == "" {
		cfg.LetterStats.Prefix = DefaultStatsPrefix
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = DefaultVisionTimeout
	}
	if cfg.Voice.SampleRate == 0 {
		cfg.Voice.SampleRate = DefaultSampleRate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Speech
	if cfg.Speech.Backend != "" && !cfg.Speech.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("speech.backend %q is invalid; valid values: browser, tts, none", cfg.Speech.Backend))
	}
	if cfg.Speech.Backend == SpeechTTS && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("speech.backend \"tts\" requires providers.tts"))
	}
	if r := cfg.Speech.Rate; r != 0 && (r < 0.5 || r > 2.0) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.5, 2.0]", r))
	}
	if p := cfg.Speech.Pitch; p != 0 && (p < 0.5 || p > 2.0) {
		errs = append(errs, fmt.Errorf("speech.pitch %.2f is out of range [0.5, 2.0]", p))
	}
	if cfg.Speech.UtteranceTimeout < 0 {
		errs = append(errs, errors.New("speech.utterance_timeout must not be negative"))
	}

	// Unknown provider names only warn; a custom build may register more.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Coach
	if cfg.Coach.Enabled && cfg.Providers.LLM.Name == "" {
		slog.Warn("coach.enabled is set but providers.llm is not configured; canned feedback only")
	}
	if cfg.Coach.Timeout < 0 {
		errs = append(errs, errors.New("coach.timeout must not be negative"))
	}

	// Lessons
	if lang := cfg.Lessons.DefaultLanguage; lang != "" && !supportedLanguage(lang) {
		errs = append(errs, fmt.Errorf("lessons.default_language %q is invalid; valid values: en, fr", lang))
	}

	// Storage
	switch cfg.Storage.Backend {
	case "", StorageMemory:
	case StorageFile, StorageSQLite:
		if cfg.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for backend %q", cfg.Storage.Backend))
		}
	case StoragePostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for backend \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, postgres, sqlite", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageFile && cfg.Lessons.Dir != "" && cfg.Lessons.Dir == cfg.Storage.Path {
		errs = append(errs, errors.New("lessons.dir must differ from storage.path"))
	}

	// Letter statistics
	if b := cfg.LetterStats.Backend; b != "" && !b.IsValid() {
		errs = append(errs, fmt.Errorf("letter_stats.backend %q is invalid; valid values: memory, redis", b))
	}
	if cfg.LetterStats.Backend == StatsRedis && cfg.LetterStats.Addr == "" {
		errs = append(errs, errors.New("letter_stats.addr is required for backend \"redis\""))
	}

	// Voice
	if cfg.Voice.SampleRate < 0 {
		errs = append(errs, errors.New("voice.sample_rate must not be negative"))
	}
	if cfg.Voice.PhonemeMode && cfg.Providers.STT.Name == "" {
		slog.Warn("voice.phoneme_mode is set but providers.stt is not configured")
	}

	return errors.Join(errs...)
}

func supportedLanguage(tag string) bool {
	base := tag
	for i, r := range tag {
		if r == '-' || r == '_' {
			base = tag[:i]
			break
		}
	}
	return base == "en" || base == "fr"
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
