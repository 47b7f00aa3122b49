package extern

import (
	"context"
	"fmt"
	"os"

	"github.com/topoom/casefeed/internal/pipeline"
)

// StaticClassifier labels every readable image with a fixed kind. Notice
// posts carry the case details in a rendered text capture, so until a
// vision model is wired in, treating unlabeled images as text captures
// keeps the OCR stage fed.
type StaticClassifier struct {
	Default pipeline.ImageKind
}

// NewStaticClassifier returns a classifier that labels everything as the
// given kind; an empty kind defaults to a text capture.
func NewStaticClassifier(kind pipeline.ImageKind) *StaticClassifier {
	if kind == "" {
		kind = pipeline.ImageTextCapture
	}
	return &StaticClassifier{Default: kind}
}

// Classify checks the file is readable and returns the fixed kind.
func (c *StaticClassifier) Classify(_ context.Context, imagePath string) (pipeline.ImageKind, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat image %q: %w", imagePath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("image path %q is a directory", imagePath)
	}
	return c.Default, nil
}
