package app

import (
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/talkincode/waconsole/internal/domain"
	"go.uber.org/zap"
)

// settings cache lifetime; knobs are tunable at runtime but not hot-path
// critical, a short staleness window is fine.
const configCacheTTL = 30 * time.Second

// ConfigManager reads runtime settings from the sys_config table with a
// small read-through cache. Values are stored as strings and coerced on
// access.
type ConfigManager struct {
	app *Application

	mu     sync.RWMutex
	cache  map[string]string
	loaded time.Time
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app, cache: make(map[string]string)}
}

func (cm *ConfigManager) getValue(category, name string) (string, bool) {
	key := category + "." + name
	cm.mu.RLock()
	if time.Since(cm.loaded) < configCacheTTL {
		v, ok := cm.cache[key]
		cm.mu.RUnlock()
		return v, ok
	}
	cm.mu.RUnlock()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if time.Since(cm.loaded) >= configCacheTTL {
		var rows []domain.SysConfig
		if err := cm.app.gormDB.Find(&rows).Error; err != nil {
			zap.L().Error("settings load failed", zap.Error(err))
		} else {
			cm.cache = make(map[string]string, len(rows))
			for _, row := range rows {
				cm.cache[row.Type+"."+row.Name] = row.Value
			}
			cm.loaded = time.Now()
		}
	}
	v, ok := cm.cache[key]
	return v, ok
}

func (cm *ConfigManager) GetString(category, name string) string {
	v, _ := cm.getValue(category, name)
	return v
}

func (cm *ConfigManager) GetInt(category, name string) int {
	v, _ := cm.getValue(category, name)
	return cast.ToInt(v)
}

// GetIntDefault returns the setting as int, or def when unset or zero.
func (cm *ConfigManager) GetIntDefault(category, name string, def int) int {
	v, ok := cm.getValue(category, name)
	if !ok {
		return def
	}
	iv := cast.ToInt(v)
	if iv == 0 {
		return def
	}
	return iv
}

func (cm *ConfigManager) GetInt64(category, name string) int64 {
	v, _ := cm.getValue(category, name)
	return cast.ToInt64(v)
}

func (cm *ConfigManager) GetBool(category, name string) bool {
	v, _ := cm.getValue(category, name)
	return cast.ToBool(v)
}

// SetValue updates or creates one setting and invalidates the cache.
func (cm *ConfigManager) SetValue(category, name, value string) error {
	var count int64
	cm.app.gormDB.Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Count(&count)
	var err error
	if count == 0 {
		err = cm.app.gormDB.Create(&domain.SysConfig{
			Type:  category,
			Name:  name,
			Value: value,
		}).Error
	} else {
		err = cm.app.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Update("value", value).Error
	}
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.loaded = time.Time{}
	cm.mu.Unlock()
	return nil
}
