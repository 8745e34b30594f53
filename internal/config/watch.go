package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel re-reads logging.level whenever the loaded config file changes
// and applies it to level. It returns false when no config file is in use.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		applyLevel(level, v.GetString("logging.level"), e.Name)
	})
	v.WatchConfig()

	slog.Info("watching config file for log level changes", "path", v.ConfigFileUsed())
	return true
}

// applyLevel reports whether the level changed
func applyLevel(level *slog.LevelVar, name, source string) bool {
	parsed, ok := ParseLevel(name)
	if !ok {
		slog.Warn("ignoring invalid log level from config reload", "level", name, "path", source)
		return false
	}
	if parsed == level.Level() {
		return false
	}
	level.Set(parsed)
	slog.Info("log level changed", "level", parsed.String(), "path", source)
	return true
}
