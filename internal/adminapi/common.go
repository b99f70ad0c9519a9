// Package adminapi implements the operator-facing HTTP surface: profile
// lifecycle, chat sync, messaging and the live event stream.
package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/orchestrator"
	"github.com/talkincode/waconsole/internal/webserver"
	"github.com/talkincode/waconsole/pkg/common"
)

// RegisterRoutes wires every admin api route. Call once after
// webserver.Init.
func RegisterRoutes() {
	registerProfileRoutes()
	registerChatRoutes()
	registerEventRoutes()
	registerSettingsRoutes()
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return c.Get(webserver.ContextDBKey).(*gorm.DB)
}

// GetOrc returns the session orchestrator.
func GetOrc(c echo.Context) *orchestrator.Orchestrator {
	return c.Get(webserver.ContextOrcKey).(*orchestrator.Orchestrator)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":   code,
		"msg":    msg,
		"detail": detail,
	})
}

func paged(c echo.Context, list interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "ok",
		"data": map[string]interface{}{
			"list":      list,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize
}

func handleValidationError(c echo.Context, err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		first := verrs[0]
		return fail(c, http.StatusBadRequest, "VALIDATION_FAILED",
			"Invalid field "+first.Field(), first.Error())
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", err.Error())
}

// failFromOrc maps orchestrator sentinel errors onto the response code
// vocabulary so clients can branch without parsing messages.
func failFromOrc(c echo.Context, err error, fallbackCode, fallbackMsg string) error {
	switch {
	case errors.Is(err, orchestrator.ErrProfileNotFound):
		return fail(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found", err.Error())
	case errors.Is(err, orchestrator.ErrNotConnected):
		return fail(c, http.StatusConflict, "SESSION_NOT_CONNECTED", "Profile has no live session", err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyConnected):
		return fail(c, http.StatusConflict, "SESSION_EXISTS", "Profile already has a live session", err.Error())
	case errors.Is(err, orchestrator.ErrNoPendingQR):
		return fail(c, http.StatusNotFound, "QR_NOT_READY", "No pairing code pending", err.Error())
	case errors.Is(err, orchestrator.ErrConnectionUnstable):
		return fail(c, http.StatusServiceUnavailable, "CONNECTION_UNSTABLE", "Connection unstable", err.Error())
	case errors.Is(err, orchestrator.ErrRetriesExhausted):
		return fail(c, http.StatusBadGateway, fallbackCode, fallbackMsg, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, fallbackCode, fallbackMsg, err.Error())
	}
}

// oprLog records an operator action for audit.
func oprLog(c echo.Context, action, desc string) {
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}
