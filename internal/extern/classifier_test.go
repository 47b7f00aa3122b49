package extern

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topoom/casefeed/internal/pipeline"
)

func TestStaticClassifier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	imagePath := filepath.Join(dir, "capture.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("png bytes"), 0o644))

	c := NewStaticClassifier("")
	kind, err := c.Classify(context.Background(), imagePath)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ImageTextCapture, kind, "unset default falls back to text capture")

	face := NewStaticClassifier(pipeline.ImageFace)
	kind, err = face.Classify(context.Background(), imagePath)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ImageFace, kind)
}

func TestStaticClassifierUnreadable(t *testing.T) {
	t.Parallel()

	c := NewStaticClassifier(pipeline.ImageTextCapture)

	_, err := c.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = c.Classify(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "directory")
}
