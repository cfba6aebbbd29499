package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentHash(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		assert.Equal(t,
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
			DocumentHash("hello"),
		)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, DocumentHash("some text"), DocumentHash("some text"))
	})

	t.Run("byte sensitive", func(t *testing.T) {
		assert.NotEqual(t, DocumentHash("some text"), DocumentHash("some text "))
	})
}

func TestChunkID(t *testing.T) {
	docHash := DocumentHash("Widgets are assembled in three stages.")
	require.Equal(t, "40891a35f7efc9593e304fd79c40b5ed0428f3f9861c8aabf4b4406a5a593119", docHash)

	t.Run("known ids", func(t *testing.T) {
		assert.Equal(t, "7a74d14e-b7c7-5aa4-bcaf-2722fc256665", ChunkID(docHash, 0))
		assert.Equal(t, "357befca-a0bd-5c20-9dd7-6e6d892db1c0", ChunkID(docHash, 1))
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ChunkID(docHash, 3), ChunkID(docHash, 3))
	})

	t.Run("position sensitive", func(t *testing.T) {
		assert.NotEqual(t, ChunkID(docHash, 0), ChunkID(docHash, 1))
	})

	t.Run("document sensitive", func(t *testing.T) {
		other := DocumentHash("different document")
		assert.NotEqual(t, ChunkID(docHash, 0), ChunkID(other, 0))
	})

	t.Run("no ambiguity between index boundaries", func(t *testing.T) {
		// "<hash>_1" and index 12 vs 1 must never collide.
		assert.NotEqual(t, ChunkID(docHash, 1), ChunkID(docHash, 12))
	})
}
