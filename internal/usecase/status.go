package usecase

import (
	"errors"

	"github.com/example/cardscan/internal/card"
	"github.com/example/cardscan/internal/imageloader"
	"github.com/example/cardscan/internal/inference"
	"github.com/example/cardscan/internal/repository"
)

// Status is the per-item outcome of a recognition.
type Status string

const (
	StatusOK               Status = repository.StatusOK
	StatusImageUnavailable Status = "image_unavailable"
	StatusInferenceFailure Status = "inference_failure"
	StatusUnparseableReply Status = "unparseable_reply"
	StatusFailed           Status = "failed"
)

// StatusOf classifies err into a Status. A nil error is StatusOK.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, imageloader.ErrImageUnavailable):
		return StatusImageUnavailable
	case errors.Is(err, inference.ErrInferenceFailure):
		return StatusInferenceFailure
	case errors.Is(err, card.ErrUnparseableReply):
		return StatusUnparseableReply
	default:
		return StatusFailed
	}
}

// ItemResult is the outcome of one item in a batch. Record and Card are set only on success.
// Error carries the internal failure text for logs and the audit entry; it is never serialized.
type ItemResult struct {
	Index     int          `json:"index"`
	RequestID string       `json:"request_id"`
	Status    Status       `json:"status"`
	Error     string       `json:"-"`
	Record    *card.Record `json:"record,omitempty"`
	Card      *card.View   `json:"card,omitempty"`
}

// OK reports whether the item produced a card.
func (r ItemResult) OK() bool { return r.Status == StatusOK }

// Cards returns the views of successful items in input order, silently
// skipping failures. The result is never nil.
func Cards(results []ItemResult) []card.View {
	cards := make([]card.View, 0, len(results))
	for _, r := range results {
		if r.OK() && r.Card != nil {
			cards = append(cards, *r.Card)
		}
	}
	return cards
}
