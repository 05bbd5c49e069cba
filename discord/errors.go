package discord

import "encoding/json"

// ErrorMessage is the JSON error body returned alongside non-2xx responses.
type ErrorMessage struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors,omitempty"`
	Code    int32           `json:"code"`
}

// TooManyRequests is the JSON body of a 429 response.
type TooManyRequests struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
