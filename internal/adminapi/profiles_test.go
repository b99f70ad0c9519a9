package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/internal/orchestrator"
	"github.com/talkincode/waconsole/internal/realtime"
	"github.com/talkincode/waconsole/internal/webserver"
	"github.com/talkincode/waconsole/pkg/common"
)

// nullFactory satisfies driver.Factory for handler tests that never
// actually connect.
type nullFactory struct{}

type nullClient struct{}

func (nullClient) Connect(ctx context.Context) error { return nil }
func (nullClient) Disconnect() {}
func (nullClient) Logout(ctx context.Context) error { return nil }
func (nullClient) SetEventHandler(driver.EventHandler) {}
func (nullClient) GetState(ctx context.Context) (string, error) {
	return driver.StateDisconnected, nil
}
func (nullClient) GetChats(ctx context.Context) ([]driver.Chat, error) { return nil, nil }
func (nullClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]driver.Message, error) {
	return nil, nil
}
func (nullClient) SendMessage(ctx context.Context, chatID, text string) (driver.Message, error) {
	return driver.Message{}, nil
}
func (nullClient) IsRegisteredUser(ctx context.Context, phone string) (bool, error) {
	return false, nil
}
func (nullClient) ProfilePictureURL(ctx context.Context) (string, error) { return "", nil }

func (nullFactory) NewClient(ctx context.Context, clientID string) (driver.Client, error) {
	return nullClient{}, nil
}

type handlerEnv struct {
	echo *echo.Echo
	db   *gorm.DB
	orc  *orchestrator.Orchestrator
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))

	orc, err := orchestrator.New(db, nullFactory{}, realtime.NewHub(), orchestrator.Options{
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
		MaxAttempts:    1,
		BaseDelay:      time.Millisecond,
		PageSize:       10,
		ScanDepth:      20,
		ContactPause:   time.Millisecond,
		PoolSize:       4,
	})
	require.NoError(t, err)
	t.Cleanup(orc.Stop)

	e := echo.New()
	e.Validator = webserver.NewValidator()
	return &handlerEnv{echo: e, db: db, orc: orc}
}

func (env *handlerEnv) request(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	c.Set(webserver.ContextDBKey, env.db)
	c.Set(webserver.ContextOrcKey, env.orc)
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateProfile(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodPost, "/api/whatsapp/profiles",
		`{"name":"marketing","remark":"campaign account"}`)

	require.NoError(t, createProfile(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	env.db.Model(&domain.Profile{}).Count(&count)
	assert.EqualValues(t, 1, count)

	var p domain.Profile
	require.NoError(t, env.db.First(&p).Error)
	assert.Equal(t, "marketing", p.Name)
	assert.Equal(t, domain.ProfileDisconnected, p.Status)
	assert.NotEmpty(t, p.ClientID)
}

func TestCreateProfileValidation(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodPost, "/api/whatsapp/profiles", `{"remark":"no name"}`)

	require.NoError(t, createProfile(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
}

func TestCreateProfileDuplicateClientID(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodPost, "/api/whatsapp/profiles",
		`{"name":"one","client_id":"shared"}`)
	require.NoError(t, createProfile(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = env.request(http.MethodPost, "/api/whatsapp/profiles",
		`{"name":"two","client_id":"shared"}`)
	require.NoError(t, createProfile(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PROFILE_EXISTS", body["code"])
}

func TestListProfilesReconciles(t *testing.T) {
	env := newHandlerEnv(t)
	stale := &domain.Profile{
		ID:          common.UUIDint64(),
		ClientID:    common.UUID(),
		Name:        "stale",
		Status:      domain.ProfileConnected,
		IsConnected: true,
	}
	require.NoError(t, env.db.Create(stale).Error)

	c, rec := env.request(http.MethodGet, "/api/whatsapp/profiles", "")
	require.NoError(t, listProfiles(c))
	require.Equal(t, http.StatusOK, rec.Code)

	row := &domain.Profile{}
	require.NoError(t, env.db.Where("id = ?", stale.ID).First(row).Error)
	assert.Equal(t, domain.ProfileDisconnected, row.Status)
	assert.False(t, row.IsConnected)
}

func TestProfileStatusNotFound(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodGet, "/api/whatsapp/profiles/999/status", "")
	c.SetParamNames("id")
	c.SetParamValues("999")

	require.NoError(t, profileStatus(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PROFILE_NOT_FOUND", body["code"])
}

func TestProfileStatusInvalidID(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodGet, "/api/whatsapp/profiles/abc/status", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	require.NoError(t, profileStatus(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageWithoutSession(t *testing.T) {
	env := newHandlerEnv(t)
	p := &domain.Profile{
		ID:       common.UUIDint64(),
		ClientID: common.UUID(),
		Name:     "sender",
		Status:   domain.ProfileDisconnected,
	}
	require.NoError(t, env.db.Create(p).Error)

	c, rec := env.request(http.MethodPost,
		"/api/whatsapp/profiles/"+strconv.FormatInt(p.ID, 10)+"/messages",
		`{"chat_id":"628@s.whatsapp.net","text":"hello"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(p.ID, 10))

	require.NoError(t, sendMessage(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "SESSION_NOT_CONNECTED", body["code"])
}

func TestDeleteProfileEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	p := &domain.Profile{
		ID:       common.UUIDint64(),
		ClientID: common.UUID(),
		Name:     "target",
		Status:   domain.ProfileDisconnected,
	}
	require.NoError(t, env.db.Create(p).Error)

	c, rec := env.request(http.MethodDelete,
		"/api/whatsapp/profiles/"+strconv.FormatInt(p.ID, 10), "")
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(p.ID, 10))

	require.NoError(t, deleteProfile(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	env.db.Model(&domain.Profile{}).Where("id = ?", p.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}
