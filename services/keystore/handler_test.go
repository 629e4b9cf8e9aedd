package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(t)
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(svc).Register(r.Group("/v1/desktop-licenses"))
	return r, svc
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestKeyRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/v1/desktop-licenses/keys", map[string]any{"kid": "root-v1", "notes": "main"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), "private")

	var created KeyView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(r, http.MethodPost, "/v1/desktop-licenses/keys", map[string]any{"kid": "root-v1"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/v1/desktop-licenses/keys", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/v1/desktop-licenses/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "root-v1")

	w = do(r, http.MethodPatch, "/v1/desktop-licenses/keys/"+created.ID, map[string]any{"notes": "renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "renamed")

	w = do(r, http.MethodGet, "/v1/desktop-licenses/public-keys/root-v1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), created.PublicKeyB64)

	w = do(r, http.MethodGet, "/v1/desktop-licenses/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	require.Equal(t, "OKP", set.Keys[0]["kty"])
	require.Equal(t, "Ed25519", set.Keys[0]["crv"])
	require.Equal(t, "root-v1", set.Keys[0]["kid"])
	require.NotContains(t, set.Keys[0], "d")

	w = do(r, http.MethodDelete, "/v1/desktop-licenses/keys/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/v1/desktop-licenses/keys/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/v1/desktop-licenses/public-keys/root-v1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	pub, priv := newPair(t)

	w := do(r, http.MethodPost, "/v1/desktop-licenses/keys/import", map[string]any{
		"keys": []map[string]any{{"kid": "imported", "publicKey": b64(pub), "privateKey": b64(priv)}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 1, res.Total)
}

func TestMalformedBodiesCarryInvalidRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/v1/desktop-licenses/keys", "/v1/desktop-licenses/keys/import"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	err := bindError(errors.New("EOF"))
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}
