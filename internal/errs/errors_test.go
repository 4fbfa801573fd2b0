package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorySentinels(t *testing.T) {
	err := fmt.Errorf("fetch market 42: %w", NotFound("MARKET_NOT_FOUND", "no market 42"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, CatNotFound, CategoryOf(err))
	assert.False(t, IsRetryable(err))
}

func TestCodeMatching(t *testing.T) {
	a := Transient("HTTP_503", "down")
	assert.True(t, errors.Is(a, Transient("HTTP_503", "other message")))
	assert.False(t, errors.Is(a, Transient("HTTP_429", "")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", a)))
}

func TestFromStatus(t *testing.T) {
	cases := map[int]Category{404: CatNotFound, 429: CatTransient, 502: CatTransient, 400: CatValidation, 401: CatValidation}
	for status, want := range cases {
		assert.Equal(t, want, FromStatus("gamma", status, "").Category, "status %d", status)
	}
	assert.Contains(t, FromStatus("clob", 500, "oops").Error(), "clob returned HTTP 500: oops")
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Transient("NETWORK", "request failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CategoryOf(nil), Category(""))
}
