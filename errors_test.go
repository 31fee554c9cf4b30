package broker_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coregx/broker"
	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	plain := broker.NewError(broker.ErrCodeNotFound, "topic not found: 7")
	assert.Equal(t, "NOT_FOUND: topic not found: 7", plain.Error())

	cause := errors.New("dial tcp: refused")
	wrapped := broker.NewErrorWithCause(broker.ErrCodeStoreUnavailable, "failed to load topic", cause)
	assert.Equal(t, "STORE_UNAVAILABLE: failed to load topic: dial tcp: refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestErrorPredicates(t *testing.T) {
	notFound := broker.NewErrorWithCause(broker.ErrCodeNotFound, "subscription not found", broker.ErrNoData)

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"no data", broker.ErrNoData, broker.IsNoData, true},
		{"not found", notFound, broker.IsNotFound, true},
		{"not found wraps no data", notFound, broker.IsNoData, true},
		{"fmt wrapped", fmt.Errorf("pull: %w", notFound), broker.IsNotFound, true},
		{"conflict", broker.ErrConflict, broker.IsConflict, true},
		{"no subscribers", broker.NewError(broker.ErrCodeNoSubscribers, "x"), broker.IsNoSubscribers, true},
		{"invalid", broker.NewError(broker.ErrCodeInvalidArgument, "x"), broker.IsInvalidArgument, true},
		{"store", broker.NewError(broker.ErrCodeStoreUnavailable, "x"), broker.IsStoreUnavailable, true},
		{"plain error", errors.New("x"), broker.IsNotFound, false},
		{"nil", nil, broker.IsNoData, false},
		{"different code", notFound, broker.IsConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", broker.ErrorCode(errors.New("x")))
	assert.Equal(t, broker.ErrCodeNoData, broker.ErrorCode(broker.ErrNoData))
	assert.Equal(t, broker.ErrCodeNotFound,
		broker.ErrorCode(broker.NewErrorWithCause(broker.ErrCodeNotFound, "x", broker.ErrNoData)))
}
