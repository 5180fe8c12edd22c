package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", NewAppError("ORDER_NOT_FOUND", "order x", ErrNotFound), codes.NotFound},
		{"validation", fmt.Errorf("wrapped: %w", NewAppError("VALIDATION", "bad", ErrValidation)), codes.InvalidArgument},
		{"invalid input", ErrInvalidInput, codes.InvalidArgument},
		{"precondition", NewAppError("DUPLICATE_ISSUANCE", "dup", ErrPrecondition), codes.FailedPrecondition},
		{"integrity", NewAppError("NO_LINKED_ORDER", "missing", ErrIntegrity), codes.Internal},
		{"unavailable", fmt.Errorf("recognize: %w", ErrUnavailable), codes.Unavailable},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"plain", errors.New("boom"), codes.Internal},
		{"status passthrough", status.Error(codes.Aborted, "x"), codes.Aborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(ToStatus(tt.err))
			assert.True(t, ok)
			assert.Equal(t, tt.want, st.Code())
		})
	}
	assert.NoError(t, ToStatus(nil))
}

func TestIsDomainErrorAndCodeOf(t *testing.T) {
	err := fmt.Errorf("create job: %w", NewAppError("RETURN_WITHOUT_ISSUANCE", "no issuance", ErrPrecondition))
	assert.True(t, IsDomainError(err))
	assert.Equal(t, "RETURN_WITHOUT_ISSUANCE", CodeOf(err))

	assert.False(t, IsDomainError(NewAppError("NO_LINKED_ORDER", "x", ErrIntegrity)))
	assert.Empty(t, CodeOf(errors.New("plain")))
}
