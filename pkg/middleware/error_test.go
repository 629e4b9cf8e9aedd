package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]map[string]any) {
	t.Helper()

	r := gin.New()
	r.Use(Error())
	r.GET("/", func(c *gin.Context) { _ = c.Error(err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestErrorRendersBaseError(t *testing.T) {
	w, body := serve(t, errutil.NotFound("license not found", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", body["error"]["code"])
	require.Equal(t, "license not found", body["error"]["message"])
}

func TestErrorHidesPlainErrors(t *testing.T) {
	w, body := serve(t, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal error", body["error"]["message"])
}
