// Package webserver hosts the admin API echo server. Route registration
// happens through the ApiGET/ApiPOST helpers so handler packages never
// touch the echo instance directly.
package webserver

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/internal/app"
	"github.com/talkincode/waconsole/internal/orchestrator"
)

// Context keys of the per-request injections.
const (
	ContextDBKey  = "waconsole_db"
	ContextOrcKey = "waconsole_orc"
)

var server *WebServer

type WebServer struct {
	root   *echo.Echo
	appCtx app.AppContext
	orc    *orchestrator.Orchestrator
}

// Init builds the singleton server. Must be called before any route
// registration.
func Init(appCtx app.AppContext, orc *orchestrator.Orchestrator) *WebServer {
	server = &WebServer{
		root:   echo.New(),
		appCtx: appCtx,
		orc:    orc,
	}
	server.root.Pre(middleware.RemoveTrailingSlash())
	server.root.Use(middleware.Recover())
	server.root.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	server.root.Use(injectProviders(appCtx, orc))
	server.root.HideBanner = true
	server.root.HidePort = true
	server.root.JSONSerializer = &JSONSerializer{}
	server.root.Validator = NewValidator()
	server.root.HTTPErrorHandler = errorHandler
	return server
}

// Instance returns the singleton server.
func Instance() *WebServer {
	return server
}

// Start serves until the listener fails or is closed.
func (s *WebServer) Start() error {
	cfg := s.appCtx.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.L().Info("admin api listening", zap.String("addr", addr))
	return s.root.Start(addr)
}

// Shutdown closes the listener.
func (s *WebServer) Shutdown() {
	_ = s.root.Close()
}

func injectProviders(appCtx app.AppContext, orc *orchestrator.Orchestrator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ContextDBKey, appCtx.DB())
			c.Set(ContextOrcKey, orc)
			return next(c)
		}
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	}
	zap.L().Debug("http error", zap.Int("status", code), zap.String("message", msg))
	_ = c.JSON(code, map[string]interface{}{
		"code": code,
		"msg":  msg,
	})
}

// ApiGET registers a GET route under the admin api prefix.
func ApiGET(path string, h echo.HandlerFunc) {
	server.root.GET("/api"+path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.root.POST("/api"+path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	server.root.PUT("/api"+path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.root.DELETE("/api"+path, h)
}

// JSONSerializer swaps echo's encoding/json for jsoniter.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := jsoniter.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := jsoniter.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
