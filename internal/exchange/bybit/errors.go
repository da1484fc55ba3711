package bybit

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures and undecodable responses.
	ErrTransport = errors.New("bybit: transport error")
	// ErrSigningPrecondition means the server time needed for signing was unavailable.
	ErrSigningPrecondition = errors.New("bybit: server time unavailable")
	ErrPriceUnavailable    = errors.New("bybit: price unavailable")
	ErrPositionQueryFailed = errors.New("bybit: position query failed")
	// ErrStreamDropped is sent on the stream error channel before each reconnect.
	ErrStreamDropped = errors.New("ws reconnect")
)

// RetCodeLeverageNotModified is returned by set-leverage when the requested
// leverage already equals the current one.
const RetCodeLeverageNotModified = 110043

// APIError is a non-zero retCode returned by the exchange.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit: %d %s", e.Code, e.Msg)
}

// ExchangeMessage extracts the exchange's retMsg from err, falling back to
// err.Error() when err is not an *APIError.
func ExchangeMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
