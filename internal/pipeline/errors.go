package pipeline

import (
	"errors"
	"fmt"
)

// Ledger classification strings. These are operator-facing and match the
// wording the review UI filters on.
const (
	ClassCrawlFailed    = "게시글 크롤링 불가"
	ClassClassifyFailed = "이미지 분류 불가"
	ClassUploadFailed   = "S3 저장 불가"
	ClassOCRFailed      = "OCR 처리 불가"
	ClassGeocodeFailed  = "위경도 변환 불가"
	ClassUnknown        = "처리 불가"
)

// BusinessError is a business-rule failure: the stage work completed but
// the result cannot advance (geocoding found nothing, a required field is
// still missing after every stage). It is retried like any other failure;
// its class gives the permanent-failure ledger a human-meaningful reason.
type BusinessError struct {
	Class string
	Err   error
}

// Error implements the error interface.
func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *BusinessError) Unwrap() error { return e.Err }

// FailureClass labels the permanent-failure ledger entry for this error.
func (e *BusinessError) FailureClass() string { return e.Class }

// failureClassifier is implemented by errors that carry their own ledger
// classification (BusinessError, ocr.ValidationError).
type failureClassifier interface {
	FailureClass() string
}

// ClassifyFailure extracts the ledger classification carried by err, if
// any.
func ClassifyFailure(err error) (string, bool) {
	var fc failureClassifier
	if errors.As(err, &fc) {
		return fc.FailureClass(), true
	}
	return "", false
}

// QueueFailureClass infers a ledger classification from the queue a
// message died on, for failures that carried no classification of their
// own.
func QueueFailureClass(queue string) string {
	switch queue {
	case CrawlQueue:
		return ClassCrawlFailed
	case ClassifyQueue:
		return ClassClassifyFailed
	case StoreQueue:
		return ClassUploadFailed
	case ExtractTextQueue:
		return ClassOCRFailed
	case FinalizeQueue:
		return ClassGeocodeFailed
	default:
		return ClassUnknown
	}
}
