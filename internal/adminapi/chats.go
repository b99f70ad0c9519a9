package adminapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/waconsole/internal/webserver"
	"github.com/talkincode/waconsole/pkg/common"
)

type sendMessagePayload struct {
	ChatID string `json:"chat_id" validate:"required,min=1,max=128"`
	Text   string `json:"text" validate:"required,min=1,max=65536"`
}

type contactCheckPayload struct {
	Phones []string `json:"phones" validate:"required,min=1,max=50,dive,min=5,max=20"`
}

// registerChatRoutes registers chat sync and messaging routes
func registerChatRoutes() {
	webserver.ApiGET("/whatsapp/profiles/:id/chats", fullSync)
	webserver.ApiGET("/whatsapp/profiles/:id/sync", incrementalSync)
	webserver.ApiPOST("/whatsapp/profiles/:id/messages", sendMessage)
	webserver.ApiPOST("/whatsapp/profiles/:id/contacts/check", checkContacts)
}

func fullSync(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	chats, err := GetOrc(c).FullSync(c.Request().Context(), id)
	if err != nil {
		return failFromOrc(c, err, "SYNC_FAILED", "Failed to sync chats")
	}
	return ok(c, chats)
}

// incrementalSync reports chats and messages newer than the since cursor,
// accepted as RFC3339 or unix milliseconds.
func incrementalSync(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	sinceRaw := strings.TrimSpace(c.QueryParam("since"))
	if sinceRaw == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing since parameter", nil)
	}
	since, err := common.MustLocalTime(sinceRaw)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unparseable since parameter", err.Error())
	}
	delta, err := GetOrc(c).IncrementalSync(c.Request().Context(), id, since)
	if err != nil {
		return failFromOrc(c, err, "SYNC_FAILED", "Failed to sync deltas")
	}
	return ok(c, delta)
}

func sendMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	var payload sendMessagePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	messageID, err := GetOrc(c).SendMessage(c.Request().Context(), id, payload.ChatID, payload.Text)
	if err != nil {
		return failFromOrc(c, err, "SEND_FAILED", "Failed to send message")
	}
	oprLog(c, "message_send", fmt.Sprintf("profile %d chat %s", id, payload.ChatID))
	return ok(c, map[string]interface{}{
		"message_id": messageID,
		"chat_id":    payload.ChatID,
	})
}

// checkContacts verifies up to 50 numbers per call. The orchestrator paces
// the batch so the remote side never sees a burst.
func checkContacts(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	var payload contactCheckPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse contact parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	results, err := GetOrc(c).CheckRegistered(c.Request().Context(), id, payload.Phones)
	if err != nil {
		return failFromOrc(c, err, "CHECK_FAILED", "Failed to verify contacts")
	}
	return ok(c, results)
}
