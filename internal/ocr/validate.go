// Package ocr validates and parses text extracted from missing-person
// notice captures. Validation decides whether an OCR result is worth
// parsing at all; parsing turns an accepted result into structured case
// fields.
package ocr

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// InvalidReason classifies why an OCR result was rejected.
type InvalidReason string

// Rejection classifications, in the order the checks run.
const (
	ReasonEmpty          InvalidReason = "empty result"
	ReasonTooShort       InvalidReason = "too short to be meaningful"
	ReasonMissingMarkers InvalidReason = "missing essential markers"
)

// minMeaningfulRunes is the shortest trimmed result that could plausibly
// describe a case.
const minMeaningfulRunes = 20

// essentialMarkers are the field labels a usable notice capture contains.
// A result mentioning none of them is garbage, not a notice.
var essentialMarkers = []string{
	"성명", "이름",
	"나이", "연령",
	"성별",
	"발생일시", "실종일시",
	"발생장소", "실종장소", "장소",
}

// ValidationError reports an OCR result that failed validation. It is
// retryable: the OCR model is nondeterministic, so a second pass over the
// same capture can succeed. Attempt is diagnostic only; retry scheduling
// stays with the queue listener.
type ValidationError struct {
	Reason  InvalidReason
	Attempt int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("ocr result invalid: %s (attempt %d)", e.Reason, e.Attempt)
}

// FailureClass labels the permanent-failure ledger entry for this error.
func (e *ValidationError) FailureClass() string { return "OCR 처리 불가" }

// Validate applies the acceptance policy to a raw OCR result. A nil return
// means the text is worth parsing.
func Validate(text string, attempt int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &ValidationError{Reason: ReasonEmpty, Attempt: attempt}
	}
	if utf8.RuneCountInString(trimmed) < minMeaningfulRunes {
		return &ValidationError{Reason: ReasonTooShort, Attempt: attempt}
	}
	for _, marker := range essentialMarkers {
		if strings.Contains(trimmed, marker) {
			return nil
		}
	}
	return &ValidationError{Reason: ReasonMissingMarkers, Attempt: attempt}
}
