package license

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-controlplane/pkg/httpapi"
	"license-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t, nil)
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(f.svc).Register(r.Group(httpapi.APIPrefix))
	return r, f
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, httpapi.APIPrefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLicenseRoutes(t *testing.T) {
	r, f := newTestRouter(t)

	key, err := f.keys.Generate(t.Context(), "root-v1", nil)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/licenses", sampleRequest())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var issued struct {
		License  Record   `json:"license"`
		Artifact Artifact `json:"artifact"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.Equal(t, "Example School", issued.License.Customer)

	w = do(r, http.MethodPost, "/licenses/verify", map[string]string{
		"payload":   issued.Artifact.Payload,
		"signature": issued.Artifact.Signature,
		"publicKey": key.PublicKeyB64,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res VerifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Valid)
	require.Equal(t, 50, res.Payload.Seats)

	w = do(r, http.MethodPost, "/licenses/verify-by-kid", map[string]string{
		"payload":   issued.Artifact.Payload,
		"signature": "AAAA",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"valid":false,"error":"SignatureInvalid"}`, w.Body.String())

	w = do(r, http.MethodGet, "/licenses?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), issued.License.ID)

	w = do(r, http.MethodGet, "/licenses/"+issued.License.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"payload":{`)

	w = do(r, http.MethodGet, "/licenses/"+issued.License.ID+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "example-school-"+issued.License.ID+".dat")
	a, err := ParseArtifact(w.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, issued.Artifact, a)

	file := w.Body.String()
	w = do(r, http.MethodPost, "/licenses/verify-by-kid", map[string]string{"license": file})
	require.Equal(t, http.StatusOK, w.Code)
	res = VerifyResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Valid, w.Body.String())

	w = do(r, http.MethodPost, "/licenses/verify", map[string]string{"license": file, "publicKey": key.PublicKeyB64})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"valid":true`)

	w = do(r, http.MethodDelete, "/licenses/"+issued.License.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/licenses/"+issued.License.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLicenseRouteErrors(t *testing.T) {
	r, f := newTestRouter(t)

	_, err := f.keys.Generate(t.Context(), "root-v1", nil)
	require.NoError(t, err)

	req := sampleRequest()
	req.FingerprintID = "d915347b496bc42"
	w := do(r, http.MethodPost, "/licenses", req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req = sampleRequest()
	req.Kid = "missing"
	w = do(r, http.MethodPost, "/licenses", req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodPost, "/licenses/verify", map[string]string{"payload": "x", "signature": "y", "publicKey": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/licenses/verify", map[string]string{"payload": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/licenses/verify-by-kid", map[string]string{"license": `{"payload":"x"}`})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"valid":false,"error":"MalformedPayload"}`, w.Body.String())

	w = do(r, http.MethodPost, "/licenses/verify-by-kid", map[string]string{"license": "not a license file"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"valid":false,"error":"MalformedPayload"}`, w.Body.String())

	w = do(r, http.MethodPost, "/licenses/verify-by-kid", map[string]string{"license": `{"payload":"x","signature":"y"}`, "payload": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/licenses?limit=1000", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
