package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThrough(t *testing.T) {
	err := NewVersionConflict(3, 5)
	domainErr := ToDomainError(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, CodeVersionConflict, domainErr.Code)
	assert.Equal(t, http.StatusConflict, domainErr.HTTPStatus)
	assert.EqualValues(t, 3, domainErr.Details["expected_version"])
	assert.EqualValues(t, 5, domainErr.Details["current_version"])
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("pool exhausted")
	domainErr := ToDomainError(cause)
	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.ErrorIs(t, domainErr, cause)
}

func TestToDomainErrorMapsDeadline(t *testing.T) {
	domainErr := ToDomainError(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, CodeTimeout, domainErr.Code)
	assert.Equal(t, http.StatusGatewayTimeout, domainErr.HTTPStatus)
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewUnknownAssignee("courier-9"))
	assert.True(t, HasCode(err, CodeUnknownAssignee))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(nil, CodeNotFound))
}
