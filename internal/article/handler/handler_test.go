package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/konfigurator/catalogstore/internal/article/service"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	RegisterArticleRoutes(g, service.NewMemoryService(), opts)
	return g
}

func do(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestArticleHandler_Lifecycle(t *testing.T) {
	g := newRouter(t, Options{})

	// create
	w := do(g, http.MethodPost, "/api/articles", `{"name":"T100"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	// duplicate in another case
	w = do(g, http.MethodPost, "/api/articles", `{"name":"t100"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "DUPLICATE_NAME", decode(t, w)["kind"])

	// empty name
	w = do(g, http.MethodPost, "/api/articles", `{"name":"  "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// save two snapshots
	w = do(g, http.MethodPost, "/api/articles/"+id+"/versions", `{"sections":[{"id":"a"}],"sources":["fabrics"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.EqualValues(t, 1, decode(t, w)["versionId"])
	w = do(g, http.MethodPost, "/api/articles/"+id+"/versions", `[{"id":"b"}]`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.EqualValues(t, 2, decode(t, w)["versionId"])

	// invalid payload
	w = do(g, http.MethodPost, "/api/articles/"+id+"/versions", `"nope"`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// versions
	w = do(g, http.MethodGet, "/api/articles/"+id+"/versions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var versions []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &versions))
	require.Len(t, versions, 2)

	w = do(g, http.MethodGet, "/api/articles/"+id+"/versions/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(g, http.MethodGet, "/api/articles/"+id+"/versions/9", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodGet, "/api/articles/"+id+"/versions/x", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	// latest
	w = do(g, http.MethodGet, "/api/articles/"+id+"/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode(t, w)
	require.EqualValues(t, 2, latest["versionId"])
	require.JSONEq(t, `[{"id":"b"}]`, mustJSON(t, latest["schema"]))

	// rename and look up by the new name
	w = do(g, http.MethodPatch, "/api/articles/"+id, `{"name":"T100A"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(g, http.MethodGet, "/api/lookup?name=t100a", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	require.Equal(t, "T100A", res["article"].(map[string]any)["name"])
	w = do(g, http.MethodGet, "/api/lookup?name=T100", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	// clone
	w = do(g, http.MethodPost, "/api/articles/"+id+"/clone", `{"name":"T200"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	cloneID, _ := decode(t, w)["id"].(string)
	w = do(g, http.MethodGet, "/api/articles/"+cloneID+"/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["versionId"])

	// list
	w = do(g, http.MethodGet, "/api/articles", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)

	// delete
	w = do(g, http.MethodDelete, "/api/articles/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(g, http.MethodDelete, "/api/articles/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodGet, "/api/articles/"+id+"/versions", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodGet, "/api/articles/"+id+"/latest", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestArticleHandler_ProtectedDefault(t *testing.T) {
	g := newRouter(t, Options{})
	w := do(g, http.MethodDelete, "/api/articles/default", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_ERROR", decode(t, w)["kind"])
}

func TestArticleHandler_NotFound(t *testing.T) {
	g := newRouter(t, Options{})
	w := do(g, http.MethodPatch, "/api/articles/ghost", `{"name":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodPost, "/api/articles/ghost/versions", `{}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodPost, "/api/articles/ghost/clone", `{"name":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(g, http.MethodPatch, "/api/articles/ghost", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArticleHandler_LookupFallback(t *testing.T) {
	g := newRouter(t, Options{FallbackAllWhenNoKeys: true})

	w := do(g, http.MethodPut, "/api/sources/fabrics", `{"items":["linen"]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(g, http.MethodPut, "/api/sources/broken", `{`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/articles", `{"name":"Chair"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	w = do(g, http.MethodPost, "/api/articles/"+id+"/versions", `[]`)
	require.Equal(t, http.StatusCreated, w.Code)

	// configured default applies
	w = do(g, http.MethodGet, "/api/lookup?name=chair", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode(t, w)["sources"], 1)

	// the query overrides it
	w = do(g, http.MethodGet, "/api/lookup?name=chair&fallback=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode(t, w)["sources"], 0)

	w = do(g, http.MethodGet, "/api/lookup?name=chair&fallback=maybe", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwaggerEndpoints(t *testing.T) {
	g := gin.New()
	RegisterSwagger(g)

	w := do(g, http.MethodGet, "/swagger/index.html", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "swagger-ui")

	w = do(g, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, json.Valid(w.Body.Bytes()))
	require.Contains(t, w.Body.String(), "/api/articles/{id}/versions")
	require.Contains(t, w.Body.String(), "/api/lookup")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
