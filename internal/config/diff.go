package config

import (
	"strings"

	logx "belltower/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// safe structured attrs for logging the reload.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Runner != newCfg.Runner {
		changed = append(changed, "runner")
		attrs = append(attrs,
			logx.Bool("runner.enabled", newCfg.Runner.Enabled),
			logx.String("runner.timezone", strings.TrimSpace(newCfg.Runner.Timezone)),
		)
	}

	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	switch {
	case oldN == nil && newN == nil:
	case oldN == nil || newN == nil || *oldN != *newN:
		changed = append(changed, "notifier")
		if newN != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", newN.Enabled),
				logx.Int("notifier.workers", newN.Workers),
				logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			)
		}
	}

	if oldCfg.Media != newCfg.Media {
		changed = append(changed, "media")
		attrs = append(attrs, logx.String("media.dir", newCfg.Media.Dir))
	}

	if oldCfg.Export != newCfg.Export {
		changed = append(changed, "export")
	}

	return changed, attrs
}
