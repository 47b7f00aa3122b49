// Package pipeline defines the stage queues, the message envelopes that
// flow between them, and the failure taxonomy the sweeper reports on.
package pipeline

import (
	"time"

	"github.com/topoom/casefeed/internal/ocr"
)

// Queue names. Every stage queue dead-letters into DeadLetterQueue with
// routing key "<queue>.dlq".
const (
	CrawlQueue       = "crawl-queue"
	ClassifyQueue    = "classify-queue"
	StoreQueue       = "store-queue"
	ExtractTextQueue = "extract-text-queue"
	FinalizeQueue    = "finalize-queue"
	DeadLetterQueue  = "dead-letter-queue"
)

// StageQueues returns the stage queues in pipeline order.
func StageQueues() []string {
	return []string{CrawlQueue, ClassifyQueue, StoreQueue, ExtractTextQueue, FinalizeQueue}
}

// ImageKind buckets a crawled image by what it shows.
type ImageKind string

// Image kinds. TextCapture images carry the notice text and feed the OCR
// stage.
const (
	ImageFace        ImageKind = "face"
	ImageBody        ImageKind = "body"
	ImageTextCapture ImageKind = "text_capture"
)

// Contact is an organization/phone pair extracted from a post.
type Contact struct {
	Organization string `json:"organization"`
	PhoneNumber  string `json:"phone_number"`
}

// CrawledImage is an image staged on local disk, waiting to be classified
// and uploaded. TempPath is ephemeral and is dropped once the image
// reaches the blob store.
type CrawledImage struct {
	Kind     ImageKind `json:"kind,omitempty"`
	TempPath string    `json:"temp_path"`
}

// StoredImage is an image that has reached the blob store.
type StoredImage struct {
	Kind ImageKind `json:"kind"`
	Key  string    `json:"key"`
	URL  string    `json:"url"`
}

// CrawlMessage is the pipeline entry envelope. The correlation id is
// assigned exactly once, here, and copied forward by every later stage.
type CrawlMessage struct {
	CorrelationID string    `json:"correlation_id"`
	PostURL       string    `json:"post_url"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClassifyMessage carries the crawl output into image classification.
// CaseID refers to the skeleton case row created by the crawl stage.
// CreatedAt is the entry envelope's timestamp, carried forward so every
// later stage (and the failure ledger) knows when the post came in.
type ClassifyMessage struct {
	CorrelationID string         `json:"correlation_id"`
	CaseID        int64          `json:"case_id"`
	PostURL       string         `json:"post_url"`
	Title         string         `json:"title"`
	Text          string         `json:"text"`
	Images        []CrawledImage `json:"images"`
	Contacts      []Contact      `json:"contacts"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StoreMessage carries classified images into the blob-upload stage. The
// image kinds are authoritative from here on.
type StoreMessage struct {
	CorrelationID string         `json:"correlation_id"`
	CaseID        int64          `json:"case_id"`
	PostURL       string         `json:"post_url"`
	Title         string         `json:"title"`
	Text          string         `json:"text"`
	Images        []CrawledImage `json:"images"`
	Contacts      []Contact      `json:"contacts"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ExtractTextMessage carries uploaded images into the OCR stage.
// LastImageKey names the text-capture image the OCR service should read.
type ExtractTextMessage struct {
	CorrelationID string        `json:"correlation_id"`
	CaseID        int64         `json:"case_id"`
	PostURL       string        `json:"post_url"`
	Title         string        `json:"title"`
	Text          string        `json:"text"`
	Images        []StoredImage `json:"images"`
	Contacts      []Contact     `json:"contacts"`
	LastImageKey  string        `json:"last_image_key"`
	CreatedAt     time.Time     `json:"created_at"`
}

// FinalizeMessage carries everything accumulated so far, plus the OCR
// result, into the final persistence stage.
type FinalizeMessage struct {
	CorrelationID string         `json:"correlation_id"`
	CaseID        int64          `json:"case_id"`
	PostURL       string         `json:"post_url"`
	Title         string         `json:"title"`
	Text          string         `json:"text"`
	Images        []StoredImage  `json:"images"`
	Contacts      []Contact      `json:"contacts"`
	LastImageKey  string         `json:"last_image_key"`
	OCRText       string         `json:"ocr_text"`
	Parsed        ocr.ParsedCase `json:"parsed"`
	CreatedAt     time.Time      `json:"created_at"`
}
