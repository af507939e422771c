package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJSON_WrapsInDataEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "world", data["hello"])
}

func TestAccepted_Returns202(t *testing.T) {
	rec := httptest.NewRecorder()
	Accepted(rec, map[string]string{"job_id": "abc"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCollection_IncludesMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	Collection(rec, []int{1, 2, 3}, PaginationMeta{Page: 2, Limit: 3, Total: 10, HasNext: true})

	body := decode(t, rec)
	meta := body["meta"].(map[string]any)
	assert.EqualValues(t, 2, meta["page"])
	assert.EqualValues(t, 3, meta["limit"])
	assert.EqualValues(t, 10, meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestError_Body(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", map[string]string{"id": "x"})

	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode(t, rec)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "JOB_NOT_FOUND", errBody["code"])
	assert.Equal(t, "No such job", errBody["message"])
	assert.NotNil(t, errBody["details"])
}

func TestError_OmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "INVALID_REQUEST", "bad", nil)

	body := decode(t, rec)
	errBody := body["error"].(map[string]any)
	_, hasDetails := errBody["details"]
	assert.False(t, hasDetails)
}
