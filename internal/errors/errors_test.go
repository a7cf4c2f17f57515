package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindValidation, "top_k must be positive, got %d", -1)
	assert.Equal(t, "[validation] top_k must be positive, got -1", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindBackendUnavailable, cause, "embedding endpoint unreachable")

	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapNilReturnsNil(t *testing.T) {
	err := Wrap(KindInternal, nil, "ignored")
	// Typed nil must not leak into error returns.
	assert.Nil(t, err)
}

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("document", "doc-123")
	assert.True(t, stderrors.Is(err, &Error{Kind: KindNotFound}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindConflict}))
}

func TestKindOfWalksChain(t *testing.T) {
	inner := NotFound("source", "src-1")
	outer := fmt.Errorf("scan failed: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(outer))
	assert.True(t, IsKind(outer, KindNotFound))
}

func TestKindOfUnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
}

func TestExtractionCarriesURI(t *testing.T) {
	err := Extraction("file:///docs/a.pdf", fmt.Errorf("bad xref"))
	require.NotNil(t, err)
	assert.Equal(t, KindExtraction, err.Kind)
	assert.Contains(t, err.Error(), "file:///docs/a.pdf")
}
