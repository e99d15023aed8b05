package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemWritesRFC7807Body(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Duplicate", "sku already exists")

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var detail ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, "Duplicate", detail.Title)
	require.Equal(t, http.StatusConflict, detail.Status)
	require.Equal(t, "sku already exists", detail.Detail)
}

func TestNoContentWritesEmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, rec.Body.Len())
}
