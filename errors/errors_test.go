package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf("error: %s %d", "test", 42)
	require.NotNil(t, err)
	assert.Equal(t, "error: test 42", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHint(err, "try this fix")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestWithDetail(t *testing.T) {
	err := New("error")
	withDetail := WithDetail(err, "detailed information")

	details := GetAllDetails(withDetail)
	require.Len(t, details, 1)
	assert.Equal(t, "detailed information", details[0])
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, AsInput(nil))
	assert.Nil(t, AsExternal(nil))
}

func TestClassification(t *testing.T) {
	t.Run("a classified error keeps its chain and its class", func(t *testing.T) {
		base := New("pdftotext exited 1")
		err := AsEngine(Wrap(base, "embedded stage"))

		assert.True(t, Is(err, base))
		assert.True(t, Is(err, ClassEngine))
		assert.Equal(t, ClassEngine, ClassOf(err))
	})

	t.Run("classes are mutually distinguishable", func(t *testing.T) {
		input := AsInput(New("corrupt xref table"))
		external := AsExternal(New("quota exceeded"))

		assert.Equal(t, ClassInput, ClassOf(input))
		assert.Equal(t, ClassExternal, ClassOf(external))
		assert.False(t, Is(input, ClassExternal))
		assert.False(t, Is(external, ClassInput))
	})

	t.Run("unclassified errors return a nil class", func(t *testing.T) {
		assert.Nil(t, ClassOf(New("who knows")))
		assert.Nil(t, ClassOf(nil))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("only external service failures are retryable", func(t *testing.T) {
		assert.True(t, IsRetryable(AsExternal(New("rate limited"))))
		assert.False(t, IsRetryable(AsInput(New("corrupt file"))))
		assert.False(t, IsRetryable(AsEngine(New("tesseract crashed"))))
		assert.False(t, IsRetryable(AsConfig(New("missing lang pack"))))
		assert.False(t, IsRetryable(nil))
	})

	t.Run("retryability survives further wrapping", func(t *testing.T) {
		err := AsExternal(New("deadline exceeded"))
		err = Wrap(err, "vision stage")
		err = WithHint(err, "re-run with --force once quota resets")

		assert.True(t, IsRetryable(err))
	})
}

func TestErrorChaining(t *testing.T) {
	base := New("base error")

	err := Wrap(base, "layer 1")
	err = WithHint(err, "helpful hint")
	err = WithDetail(err, "detailed info")
	err = Wrap(err, "layer 2")

	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "layer 2")
	assert.Contains(t, err.Error(), "layer 1")
	assert.Contains(t, err.Error(), "base error")

	hints := GetAllHints(err)
	assert.Contains(t, hints, "helpful hint")

	details := GetAllDetails(err)
	assert.Contains(t, details, "detailed info")
}

func ExampleNew() {
	err := New("something went wrong")
	fmt.Println(err)
	// Output: something went wrong
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to reach vision service")
	fmt.Println(err)
	// Output: failed to reach vision service: connection failed
}
