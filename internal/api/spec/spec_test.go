package spec

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	h := OpenAPIHandler()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "openapi: 3.0.3"))
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	req.Header.Set("If-None-Match", tag)
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestDocumentReturnsCopy(t *testing.T) {
	doc := Document()
	doc[0] = 'X'
	assert.NotEqual(t, doc[0], Document()[0])
}
