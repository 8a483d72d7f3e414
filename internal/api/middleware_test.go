package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &RelayApp{
		log: zerolog.New(buf),
	}

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.JSONEq(t, `{"status_code":500,"error":"internal server error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &RelayApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_logRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &RelayApp{log: zerolog.New(buf)}

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	app.logRequest(nil, handlers.LogFormatterParams{
		Request:    req,
		URL:        url.URL{Path: "/api/rooms"},
		TimeStamp:  time.Now(),
		StatusCode: http.StatusOK,
		Size:       42,
	})

	out := buf.String()
	assert.Contains(t, out, `"method":"GET"`)
	assert.Contains(t, out, `"path":"/api/rooms"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"size":42`)
}
