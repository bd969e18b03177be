// Package handler provides HTTP request handlers for KeyDesk.
package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// RedeemRequest is the optional request body for POST /v1/keys/redeem.
type RedeemRequest struct {
	Key string `json:"key"`

	// RecipientID optionally names the redeemer. Empty means unknown.
	RecipientID string `json:"recipient_id,omitempty"`
}

// RedeemResponse is the response body for a successful redemption.
type RedeemResponse struct {
	Key        string    `json:"key"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
