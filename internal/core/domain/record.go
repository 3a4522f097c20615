package domain

import (
	"fmt"
	"time"
)

// EmailRecord carries one message through the pipeline. It is a value: each
// transition returns a new record, and the extraction can be set only once.
type EmailRecord struct {
	Message    RawMessage `json:"message"`
	Extraction Extraction `json:"extraction"`
	classified bool
}

func NewEmailRecord(msg RawMessage) EmailRecord {
	return EmailRecord{
		Message:    msg,
		Extraction: Unclassified(SkipNone),
	}
}

// WithExtraction returns a copy of the record holding x. A record that was
// already classified or skipped is rejected with ErrAlreadyClassified.
func (r EmailRecord) WithExtraction(x Extraction) (EmailRecord, error) {
	if r.classified {
		return r, WrapError(ErrAlreadyClassified, "apply extraction", fmt.Errorf("uid=%s", r.Message.UID))
	}
	r.Extraction = x
	r.classified = true
	return r, nil
}

// Skipped returns a copy of the record marked unclassified for reason.
func (r EmailRecord) Skipped(reason SkipReason) (EmailRecord, error) {
	return r.WithExtraction(Unclassified(reason))
}

func (r EmailRecord) UID() string { return r.Message.UID }

func (r EmailRecord) ReceivedAt() time.Time { return r.Message.ReceivedAt }

func (r EmailRecord) Classified() bool { return r.classified }

func (r EmailRecord) IsApplication() bool {
	return r.Extraction.Kind == KindApplication
}

// NeedsReview flags low confidence extractions and applications the model
// could not attribute to both a company and a position.
func (r EmailRecord) NeedsReview() bool {
	if r.Extraction.Confidence == ConfidenceLow {
		return true
	}
	return r.IsApplication() && !r.Extraction.Complete()
}

// Linkable reports whether the record may be attached to an Application.
func (r EmailRecord) Linkable() bool {
	return r.IsApplication() && r.Extraction.Confidence.Linkable() && r.Extraction.Complete()
}
