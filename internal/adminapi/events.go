package adminapi

import (
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/internal/realtime"
	"github.com/talkincode/waconsole/internal/webserver"
)

// per-connection buffer; a client that cannot keep up loses events rather
// than stalling the hub.
const streamBuffer = 64

// registerEventRoutes registers the live event stream
func registerEventRoutes() {
	webserver.ApiGET("/whatsapp/profiles/:id/events", streamEvents)
}

// streamEvents serves the profile's room as server-sent events until the
// client disconnects.
func streamEvents(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid profile ID", nil)
	}
	if _, err := GetOrc(c).Status(c.Request().Context(), id); err != nil {
		return failFromOrc(c, err, "STREAM_FAILED", "Failed to open event stream")
	}

	events := make(chan realtime.Envelope, streamBuffer)
	var sub realtime.Subscriber = func(env realtime.Envelope) {
		select {
		case events <- env:
		default:
		}
	}

	// join the room before committing the response so a failure can still
	// produce a JSON error body
	hub := GetOrc(c).Hub()
	room := realtime.RoomName(id)
	if err := hub.Subscribe(room, sub); err != nil {
		return fail(c, http.StatusInternalServerError, "STREAM_FAILED", "Failed to join room", err.Error())
	}
	defer hub.Unsubscribe(room, sub)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	zap.L().Info("event stream opened", zap.Int64("profile_id", id))
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("event stream closed", zap.Int64("profile_id", id))
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(resp, ": keepalive\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case env := <-events:
			data, err := jsoniter.Marshal(env)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
