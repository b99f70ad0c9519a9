package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/webserver"
	"github.com/talkincode/waconsole/pkg/common"
)

type profilePayload struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	ClientID string `json:"client_id" validate:"omitempty,min=1,max=64"`
	Remark   string `json:"remark" validate:"omitempty,max=500"`
}

type profileUpdatePayload struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=200"`
	Remark *string `json:"remark" validate:"omitempty,max=500"`
}

// registerProfileRoutes registers profile lifecycle routes
func registerProfileRoutes() {
	webserver.ApiGET("/whatsapp/profiles", listProfiles)
	webserver.ApiPOST("/whatsapp/profiles", createProfile)
	webserver.ApiPUT("/whatsapp/profiles/:id", updateProfile)
	webserver.ApiDELETE("/whatsapp/profiles/:id", deleteProfile)
	webserver.ApiGET("/whatsapp/profiles/:id/status", profileStatus)
	webserver.ApiGET("/whatsapp/profiles/:id/qr", profileQR)
	webserver.ApiPOST("/whatsapp/profiles/:id/connect", connectProfile)
	webserver.ApiPOST("/whatsapp/profiles/:id/disconnect", disconnectProfile)
	webserver.ApiPOST("/whatsapp/profiles/:id/reconnect", reconnectProfile)
}

// listProfiles runs a reconciliation pass before answering so stale rows
// from a dead process never reach the dashboard.
func listProfiles(c echo.Context) error {
	profiles, err := GetOrc(c).List(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query profiles", err.Error())
	}
	return ok(c, profiles)
}

func createProfile(c echo.Context) error {
	var payload profilePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse profile parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	payload.Name = strings.TrimSpace(payload.Name)
	clientID := strings.TrimSpace(payload.ClientID)
	if clientID == "" {
		clientID = common.UUID()
	}

	var exists int64
	GetDB(c).Model(&domain.Profile{}).Where("client_id = ?", clientID).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "PROFILE_EXISTS", "Client id already in use", nil)
	}

	profile := domain.Profile{
		ID:        common.UUIDint64(),
		ClientID:  clientID,
		Name:      payload.Name,
		Status:    domain.ProfileDisconnected,
		Remark:    payload.Remark,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&profile).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create profile", err.Error())
	}

	oprLog(c, "profile_create", fmt.Sprintf("profile %d (%s)", profile.ID, profile.Name))
	return ok(c, profile)
}

func updateProfile(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}

	var payload profileUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse profile parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var p domain.Profile
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query profile", err.Error())
	}

	if payload.Name != nil {
		p.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.Remark != nil {
		p.Remark = *payload.Remark
	}
	p.UpdatedAt = time.Now()

	if err := GetDB(c).Save(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update profile", err.Error())
	}
	return ok(c, p)
}

func deleteProfile(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	if err := GetOrc(c).Delete(c.Request().Context(), id); err != nil {
		return failFromOrc(c, err, "DELETE_FAILED", "Failed to delete profile")
	}
	oprLog(c, "profile_delete", fmt.Sprintf("profile %d", id))
	return ok(c, map[string]interface{}{"id": id})
}

func profileStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	view, err := GetOrc(c).Status(c.Request().Context(), id)
	if err != nil {
		return failFromOrc(c, err, "STATUS_FAILED", "Failed to read profile status")
	}
	return ok(c, view)
}

// profileQR returns the pending pairing code. With ?format=png the raw
// image is returned instead of the JSON envelope.
func profileQR(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	code, image, err := GetOrc(c).QR(c.Request().Context(), id)
	if err != nil {
		return failFromOrc(c, err, "QR_FAILED", "Failed to read pairing code")
	}
	if c.QueryParam("format") == "png" {
		return c.Blob(http.StatusOK, "image/png", image)
	}
	return ok(c, map[string]interface{}{
		"code":  code,
		"image": image,
	})
}

func connectProfile(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	if err := GetOrc(c).Connect(c.Request().Context(), id); err != nil {
		return failFromOrc(c, err, "CONNECT_FAILED", "Failed to start session")
	}
	oprLog(c, "profile_connect", fmt.Sprintf("profile %d", id))
	return ok(c, map[string]interface{}{"id": id, "status": domain.ProfileConnecting})
}

func disconnectProfile(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	if err := GetOrc(c).Disconnect(c.Request().Context(), id); err != nil {
		return failFromOrc(c, err, "DISCONNECT_FAILED", "Failed to stop session")
	}
	oprLog(c, "profile_disconnect", fmt.Sprintf("profile %d", id))
	return ok(c, map[string]interface{}{"id": id, "status": domain.ProfileDisconnected})
}

func reconnectProfile(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	if err := GetOrc(c).Reconnect(c.Request().Context(), id); err != nil {
		return failFromOrc(c, err, "CONNECT_FAILED", "Failed to restart session")
	}
	oprLog(c, "profile_reconnect", fmt.Sprintf("profile %d", id))
	return ok(c, map[string]interface{}{"id": id, "status": domain.ProfileConnecting})
}
