package app

import (
	"github.com/talkincode/waconsole/internal/domain"
	"go.uber.org/zap"
)

type settingSchema struct {
	Type        string
	Name        string
	Default     string
	Description string
}

// Runtime-tunable knobs. Operators adjust them through the settings API;
// code reads them through the ConfigManager.
var defaultSettings = []settingSchema{
	{"session", "ConnectTimeoutSec", "60", "Upper bound for one driver connect attempt"},
	{"session", "CallTimeoutSec", "30", "Upper bound for chat and message calls"},
	{"session", "RetryMaxAttempts", "3", "Retry budget for driver operations"},
	{"session", "RetryBaseDelayMs", "1000", "Base backoff delay, doubled per attempt"},
	{"session", "ContactCheckPauseMs", "1500", "Pause between contact check calls"},
	{"session", "EventPoolSize", "64", "Goroutine pool size for event fan-out"},
	{"session", "QRExpirySec", "120", "Unscanned pairing codes expire after this"},
	{"sync", "PageSize", "10", "Chat page size of a full sync"},
	{"sync", "ScanDepth", "20", "Messages scanned per chat on incremental sync"},
}

func (a *Application) checkSettings() {
	for sortid, schema := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", schema.Type, schema.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     0,
				Sort:   sortid,
				Type:   schema.Type,
				Name:   schema.Name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Type+"."+schema.Name),
				zap.String("default", schema.Default))
		}
	}
}
