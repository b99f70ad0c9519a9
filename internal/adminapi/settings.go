package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/webserver"
)

type settingPayload struct {
	Type  string `json:"type" validate:"required,min=1,max=64"`
	Name  string `json:"name" validate:"required,min=1,max=64"`
	Value string `json:"value" validate:"required,max=255"`
}

// registerSettingsRoutes registers runtime settings routes
func registerSettingsRoutes() {
	webserver.ApiGET("/settings", listSettings)
	webserver.ApiPOST("/settings", updateSetting)
}

func listSettings(c echo.Context) error {
	var rows []domain.SysConfig
	db := GetDB(c).Model(&domain.SysConfig{})
	if t := strings.TrimSpace(c.QueryParam("type")); t != "" {
		db = db.Where("type = ?", t)
	}
	if err := db.Order("sort").Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query settings", err.Error())
	}
	return ok(c, rows)
}

// updateSetting changes one knob. Unknown keys are rejected so typos do
// not create dead rows.
func updateSetting(c echo.Context) error {
	var payload settingPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse setting parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var count int64
	GetDB(c).Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", payload.Type, payload.Name).
		Count(&count)
	if count == 0 {
		return fail(c, http.StatusNotFound, "SETTING_NOT_FOUND", "Unknown setting key", nil)
	}

	err := GetDB(c).Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", payload.Type, payload.Name).
		Update("value", payload.Value).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update setting", err.Error())
	}
	oprLog(c, "setting_update", payload.Type+"."+payload.Name)
	return ok(c, map[string]interface{}{
		"type":  payload.Type,
		"name":  payload.Name,
		"value": payload.Value,
	})
}
