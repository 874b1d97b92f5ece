// Package inference talks to the vision-language model that reads the card.
package inference

import (
	"context"
	"errors"

	"github.com/example/cardscan/internal/prompt"
)

// ErrInferenceFailure covers transport errors, non-2xx replies and malformed
// response envelopes from the model endpoint.
var ErrInferenceFailure = errors.New("inference failure")

// Client returns the model's text completion for a recognition request.
type Client interface {
	Complete(ctx context.Context, req prompt.Request) (string, error)
	Model() string
}
