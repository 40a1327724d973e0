package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ChildNameChanged bool
	NewChildName     string

	LanguageChanged bool
	NewLanguage     string

	// RestartRequired lists config sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ChildNameChanged && !d.LanguageChanged &&
		len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Coach.ChildName != new.Coach.ChildName {
		d.ChildNameChanged = true
		d.NewChildName = new.Coach.ChildName
	}
	if old.Lessons.DefaultLanguage != new.Lessons.DefaultLanguage {
		d.LanguageChanged = true
		d.NewLanguage = new.Lessons.DefaultLanguage
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.MCP != new.Server.MCP ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Speech != new.Speech {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Coach.Enabled != new.Coach.Enabled || old.Coach.Timeout != new.Coach.Timeout {
		d.RestartRequired = append(d.RestartRequired, "coach")
	}
	if !sameEntry(old.Providers.LLM, new.Providers.LLM) || !sameEntry(old.Providers.STT, new.Providers.STT) || !sameEntry(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Lessons.Dir != new.Lessons.Dir {
		d.RestartRequired = append(d.RestartRequired, "lessons.dir")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.LetterStats != new.LetterStats {
		d.RestartRequired = append(d.RestartRequired, "letter_stats")
	}
	if old.Events != new.Events {
		d.RestartRequired = append(d.RestartRequired, "events")
	}
	if old.Vision != new.Vision {
		d.RestartRequired = append(d.RestartRequired, "vision")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && reflect.DeepEqual(a.Options, b.Options)
}
