package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		sentinel  error
	}{
		{"rate limited", 429, true, ErrRateLimited},
		{"server error", 500, true, ErrRemoteUnavailable},
		{"bad gateway", 502, true, ErrRemoteUnavailable},
		{"network failure", 0, true, nil},
		{"bad request", 400, false, nil},
		{"not found", 404, false, nil},
		{"unprocessable", 422, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError("yuman", tt.status, "/sites", "boom")
			assert.Equal(t, tt.transient, err.Transient())
			assert.Equal(t, tt.transient, IsTransient(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestAPIErrorKeepsBody(t *testing.T) {
	err := NewAPIError("vcom", 400, "/systems", `{"error":"bad key"}`)
	assert.Contains(t, err.Error(), `{"error":"bad key"}`)
	assert.Contains(t, err.Error(), "400")
}

func TestStoreConflictError(t *testing.T) {
	cause := New("duplicate key value violates unique constraint")
	err := NewStoreConflictError("sites_mapping", "vcom_system_key", "SYS1", cause)

	assert.True(t, IsStoreConflict(err))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "sites_mapping.vcom_system_key=SYS1")
}

func TestSyncErrorWrapping(t *testing.T) {
	inner := NewAPIError("yuman", 503, "/materials", "maintenance")
	err := NewSyncError("equipment", "WR1", "apply", inner)

	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.True(t, IsTransient(inner))

	var apiErr *APIError
	assert.True(t, As(err, &apiErr))
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("vcom", "VCOM_API_KEY is not set", nil)
	assert.Equal(t, "configuration error in vcom: VCOM_API_KEY is not set", err.Error())

	wrapped := fmt.Errorf("startup: %w", err)
	var cfgErr *ConfigError
	assert.True(t, As(wrapped, &cfgErr))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("vcom_system_key", "", "required for correlation")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "vcom_system_key")
}
