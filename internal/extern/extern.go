// Package extern holds the clients for everything outside the pipeline:
// the bulletin board being crawled, the OCR model service, the image
// classifier, and the geocoding API. Each collaborator sits behind a
// small interface so consumers can be tested without the real service.
package extern

import (
	"context"

	"github.com/topoom/casefeed/internal/pipeline"
)

// CrawledPost is the raw material pulled from one bulletin-board post.
type CrawledPost struct {
	Title    string
	Text     string
	Images   []pipeline.CrawledImage
	Contacts []pipeline.Contact
}

// PostCrawler fetches one post and stages its images on local disk.
type PostCrawler interface {
	FetchPost(ctx context.Context, postURL string) (CrawledPost, error)
}

// ImageClassifier decides what kind of image a staged file is.
type ImageClassifier interface {
	Classify(ctx context.Context, imagePath string) (pipeline.ImageKind, error)
}

// OCRClient extracts text from an uploaded image.
type OCRClient interface {
	ExtractText(ctx context.Context, imageURL string) (string, error)
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves a free-form Korean address to coordinates. The bool
// result distinguishes "address not found" from a transport failure.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coordinates, bool, error)
}
