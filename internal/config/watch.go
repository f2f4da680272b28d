package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLevel re-reads log.level whenever the config file loaded into v
// changes and applies it to level. Other keys need a restart.
func WatchLevel(v *viper.Viper, level *slog.LevelVar, logger *slog.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadLevel(v, e, level, logger)
	})
	v.WatchConfig()
}

func reloadLevel(v *viper.Viper, e fsnotify.Event, level *slog.LevelVar, logger *slog.Logger) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	next, err := ParseLevel(v.GetString("log.level"))
	if err != nil {
		logger.Warn("ignoring config change", "file", e.Name, "error", err)
		return
	}
	if next == level.Level() {
		return
	}
	logger.Info("log level changed", "from", level.Level().String(), "to", next.String())
	level.Set(next)
}
