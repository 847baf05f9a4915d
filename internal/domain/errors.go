package domain

import "errors"

var (
	ErrNoPartials       = errors.New("no successful partial results to merge")
	ErrMiningFailed     = errors.New("mining produced no successful chunks")
	ErrRecordNotFound   = errors.New("document record not found")
	ErrMalformedPayload = errors.New("stage payload is not a JSON object")
	ErrEmptyResponse    = errors.New("analysis engine returned an empty response")
	ErrEmptyDocument    = errors.New("document has no content")
)
