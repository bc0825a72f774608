package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	SuccessResponse(c, http.StatusOK, "ok", gin.H{"digit": 3})

	var response APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "req-1", response.RequestID)
	assert.Equal(t, float64(3), response.Data.(map[string]interface{})["digit"])
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorResponse(c, http.StatusGatewayTimeout, "Device did not answer", errors.New("timeout"))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var response APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	require.NotNil(t, response.Error)
	assert.Equal(t, "GATEWAY_TIMEOUT", response.Error.Code)
	assert.Equal(t, "timeout", response.Error.Details)
}

func TestErrorResponseWithCode(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorResponseWithCode(c, http.StatusUnprocessableEntity, "NO_DIGIT_FOUND", "No digit", nil, gin.H{"lines": []string{"a"}})

	var response APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "NO_DIGIT_FOUND", response.Error.Code)
	assert.Empty(t, response.Error.Details)
	assert.NotNil(t, response.Data)
}

func TestValidationErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ValidationErrorResponse(c, map[string]string{"limit": "must not be negative"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.Error)
	assert.Equal(t, "VALIDATION_ERROR", response.Error.Code)
	errs := response.Data.(map[string]interface{})["validation_errors"].(map[string]interface{})
	assert.Equal(t, "must not be negative", errs["limit"])
}
