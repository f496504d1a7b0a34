package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]int{"count": 2}, "req-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"count":2},"requestId":"req-1"}`, rec.Body.String())
}

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, CodeValidation, "invalid", []string{"salary"}, "req-2")

	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, CodeValidation, env.Error.Code)
	assert.Equal(t, []string{"salary"}, env.Error.Details)
}
