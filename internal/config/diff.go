package config

import "reflect"

// Diff describes what changed between two configs. The log level is the only
// setting applied live; every other change requires a restart because the
// pipeline snapshot is immutable.
type Diff struct {
	// LogLevelChanged is true when only a log-level switch is needed.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the config sections whose changes cannot be
	// applied to the running pipeline.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Compare returns what changed between old and next.
func Compare(old, next *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != next.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = next.Server.LogLevel
	}

	// Compare server settings with the hot-reloadable log level masked out.
	oldServer, nextServer := old.Server, next.Server
	oldServer.LogLevel, nextServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, nextServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}

	if !reflect.DeepEqual(old.Pipeline, next.Pipeline) {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if !reflect.DeepEqual(old.Hotkey, next.Hotkey) {
		d.RestartRequired = append(d.RestartRequired, "hotkey")
	}
	if !reflect.DeepEqual(old.Providers, next.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Chat, next.Chat) {
		d.RestartRequired = append(d.RestartRequired, "chat")
	}
	if !reflect.DeepEqual(old.Sound, next.Sound) {
		d.RestartRequired = append(d.RestartRequired, "sound")
	}

	return d
}
