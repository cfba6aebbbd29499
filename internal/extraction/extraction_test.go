package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	extractor := NewDocumentExtractor()
	ctx := context.Background()

	t.Run("plain text passes through", func(t *testing.T) {
		text, err := extractor.ExtractText(ctx, []byte("Hello, documentation.\nSecond line."))
		require.NoError(t, err)
		assert.Equal(t, "Hello, documentation.\nSecond line.", text)
	})

	t.Run("empty input rejected", func(t *testing.T) {
		_, err := extractor.ExtractText(ctx, nil)
		assert.ErrorIs(t, err, ErrExtraction)
	})

	t.Run("binary garbage rejected", func(t *testing.T) {
		_, err := extractor.ExtractText(ctx, []byte{0xff, 0xfe, 0x00, 0x80})
		assert.ErrorIs(t, err, ErrExtraction)
	})

	t.Run("corrupt pdf rejected", func(t *testing.T) {
		_, err := extractor.ExtractText(ctx, []byte("%PDF-1.7 this is not a real pdf"))
		assert.ErrorIs(t, err, ErrExtraction)
	})

	t.Run("canceled context observed", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := extractor.ExtractText(canceled, []byte("text"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
