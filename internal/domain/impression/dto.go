package impression

import "encoding/json"

// TrackRequest is sent by the client when an ad or task is shown.
type TrackRequest struct {
	AdType   string          `json:"ad_type" validate:"required,slug"`
	AdFormat string          `json:"ad_format" validate:"required,ad_format"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}
