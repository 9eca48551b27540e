package error

import "errors"

// GenericError is implemented by every typed error in this package so the
// HTTP recovery middleware can map a panic to a response.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

var (
	ErrWaCLI         = errors.New("whatsapp client is not ready, pair the device first")
	ErrNotConnected  = errors.New("whatsapp client is not connected")
	ErrMediaTooLarge = errors.New("media exceeds the configured size limit")
)
