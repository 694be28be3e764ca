package client

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// CloseInfo describes why a connection ended.
type CloseInfo struct {
	// Code is the websocket close code, or CloseAbnormalClosure when the
	// connection failed without a close frame.
	Code   int
	Reason string
	Err    error
}

// Transient reports whether the close is an expected interruption that
// should not be surfaced as an error. Rejected credentials and protocol or
// policy violations are fatal.
func (c CloseInfo) Transient() bool {
	if errors.Is(c.Err, apperrors.ErrUnauthorized) {
		return false
	}
	switch c.Code {
	case websocket.ClosePolicyViolation,
		websocket.CloseProtocolError,
		websocket.CloseUnsupportedData,
		websocket.CloseInvalidFramePayloadData,
		websocket.CloseMandatoryExtension:
		return false
	}
	return true
}

func (c CloseInfo) String() string {
	if c.Err != nil {
		return fmt.Sprintf("code %d: %v", c.Code, c.Err)
	}
	return fmt.Sprintf("code %d: %s", c.Code, c.Reason)
}

// closeInfoFromError classifies a dial or read failure.
func closeInfoFromError(err error) CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseInfo{Code: ce.Code, Reason: ce.Text, Err: err}
	}
	return CloseInfo{Code: websocket.CloseAbnormalClosure, Err: err}
}
