package domain

import "strings"

type Stage string

const (
	StageApplied    Stage = "applied"
	StageRejected   Stage = "rejected"
	StageInterview  Stage = "interview"
	StageOffer      Stage = "offer"
	StageAssessment Stage = "assessment"
	StageOther      Stage = "other"
)

// ParseStage maps free-form classifier output to a Stage. Empty and "null"
// mean no stage; any other unknown text is StageOther.
func ParseStage(raw string) Stage {
	switch normalizeToken(raw) {
	case "", "null", "none", "n/a":
		return ""
	case "applied", "application", "submitted":
		return StageApplied
	case "rejected", "rejection", "declined":
		return StageRejected
	case "interview", "interviewing":
		return StageInterview
	case "offer", "offered":
		return StageOffer
	case "assessment", "oa", "test", "coding challenge":
		return StageAssessment
	default:
		return StageOther
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence returns "" for anything outside high/medium/low.
func ParseConfidence(raw string) Confidence {
	switch normalizeToken(raw) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	default:
		return ""
	}
}

// Linkable reports whether an extraction at this confidence may be attached
// to an Application.
func (c Confidence) Linkable() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

type ExtractionKind string

const (
	KindUnclassified   ExtractionKind = "unclassified"
	KindNotApplication ExtractionKind = "not_application"
	KindApplication    ExtractionKind = "application"
)

// SkipReason explains why a record stayed unclassified.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipGateRejected     SkipReason = "gate_rejected"
	SkipClassifierFailed SkipReason = "classifier_failed"
	SkipDuplicateInBatch SkipReason = "duplicate_in_batch"
	SkipInterrupted      SkipReason = "interrupted"
)

// Extraction is the result of classifying one message. Empty strings mean
// the classifier could not identify the field.
type Extraction struct {
	Kind       ExtractionKind `json:"kind"`
	SkipReason SkipReason     `json:"skip_reason,omitempty"`
	Company    string         `json:"company,omitempty"`
	Position   string         `json:"position,omitempty"`
	Stage      Stage          `json:"stage,omitempty"`
	Confidence Confidence     `json:"confidence,omitempty"`
}

func Unclassified(reason SkipReason) Extraction {
	return Extraction{Kind: KindUnclassified, SkipReason: reason}
}

func NotApplication(confidence Confidence) Extraction {
	return Extraction{Kind: KindNotApplication, Confidence: confidence}
}

func ApplicationExtraction(company, position string, stage Stage, confidence Confidence) Extraction {
	return Extraction{
		Kind:       KindApplication,
		Company:    strings.TrimSpace(company),
		Position:   strings.TrimSpace(position),
		Stage:      stage,
		Confidence: confidence,
	}
}

// Complete reports whether both company and position were identified.
func (x Extraction) Complete() bool {
	return x.Company != "" && x.Position != ""
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
