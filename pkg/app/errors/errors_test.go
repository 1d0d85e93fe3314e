package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceError_StatusCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		cat  Category
		code int
	}{
		{BadRequestError(cause, "bad"), CategoryDataError, http.StatusBadRequest},
		{ResourceNotFoundError(cause, "missing"), CategoryResourceNotFound, http.StatusNotFound},
		{DependencyError(cause, "rpc"), CategoryDependencyFailure, http.StatusBadGateway},
		{RecoveringError(cause, "syncing"), CategoryRecovering, http.StatusServiceUnavailable},
		{GeneralError(cause), CategoryGeneralError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.cat.String(), func(t *testing.T) {
			var svcErr *ServiceError
			require.True(t, errors.As(tt.err, &svcErr))
			assert.Equal(t, tt.code, svcErr.StatusCode())
			assert.True(t, Is(tt.err, tt.cat))
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestServiceError_NilCause(t *testing.T) {
	err := ResourceNotFoundError(nil, "request not found")
	assert.Equal(t, "request not found", err.Error())
	assert.Equal(t, "Internal Server Error", GeneralError(nil).(*ServiceError).Message)

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, Is(wrapped, CategoryResourceNotFound))
	assert.False(t, Is(wrapped, CategoryDataError))
	assert.False(t, Is(errors.New("plain"), CategoryGeneralError))
}
