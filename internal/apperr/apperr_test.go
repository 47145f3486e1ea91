package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("NilStaysNil", func(t *testing.T) {
		assert.NoError(t, Classify(context.Background(), "op", nil))
	})

	t.Run("CancelledContextWins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Classify(ctx, "list tasks", errors.New("connection reset"))
		assert.Equal(t, KindCancelled, KindOf(err))
		assert.True(t, IsCancelled(err))
	})

	t.Run("WrappedContextCanceled", func(t *testing.T) {
		err := Classify(context.Background(), "op", fmt.Errorf("do: %w", context.Canceled))
		assert.Equal(t, KindCancelled, KindOf(err))
	})

	t.Run("PlainErrorIsTransport", func(t *testing.T) {
		err := Classify(context.Background(), "op", errors.New("dial tcp: refused"))
		assert.Equal(t, KindTransport, KindOf(err))
		assert.Contains(t, err.Error(), "dial tcp")
	})

	t.Run("ApplicationKept", func(t *testing.T) {
		err := Classify(context.Background(), "op", Application("op", "no such org"))
		assert.Equal(t, KindApplication, KindOf(err))
	})

	t.Run("ApplicationAfterCancelBecomesCancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Classify(ctx, "op", Application("op", "late"))
		assert.True(t, IsCancelled(err))
	})
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindEmptyInput, "refresh stats", "no ids"))
	assert.ErrorIs(t, err, ErrNothingToUpdate)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "", UserMessage(ErrCancelled))
	assert.Equal(t, "", UserMessage(ErrDeclined))
	assert.Equal(t, "", UserMessage(context.Canceled))
	assert.Equal(t, msgNothingToUpdate, UserMessage(ErrNothingToUpdate))
	assert.Equal(t, "org not found", UserMessage(Application("list", "org not found")))
	assert.Equal(t, msgGenericFailure, UserMessage(Application("list", "")))
	assert.Equal(t, msgServerError, UserMessage(Transport("list", errors.New("eof"))))
	assert.Equal(t, msgServerError, UserMessage(errors.New("foreign")))
	assert.Equal(t, msgNotAuthenticated, UserMessage(ErrNotAuthenticated))
	assert.Equal(t, msgBusy, UserMessage(ErrBusy))
	assert.Equal(t, "customer name is required", UserMessage(New(KindEmptyInput, "create", "customer name is required")))
	assert.Equal(t, "bad sort", UserMessage(Invalid("logs", "bad sort")))
}

func TestErrorString(t *testing.T) {
	err := Wrap(KindTransport, "get stats", errors.New("eof"), "request failed")
	assert.Equal(t, "get stats: request failed: eof", err.Error())
	assert.Equal(t, "get stats", err.Op())
	assert.Equal(t, "request failed", err.Message())

	var nilErr *Error
	assert.Equal(t, "", nilErr.Error())
	assert.Equal(t, KindUnknown, nilErr.Kind())
}
