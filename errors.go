package serial

import "errors"

var (
	ErrInvalidConfiguration = errors.New("serial: invalid configuration")
	ErrDeviceUnavailable    = errors.New("serial: device unavailable")
	ErrHandleNotFound       = errors.New("serial: handle not found")
	ErrEncoding             = errors.New("serial: encoding error")
	ErrConnectionLost       = errors.New("serial: connection lost")

	ErrSessionLimit   = errors.New("serial: session limit exceeded")
	ErrPortNotAllowed = errors.New("serial: port not allowed")
	ErrBufferTooLarge = errors.New("serial: buffer too large")
	ErrManagerClosed  = errors.New("serial: manager closed")
	ErrEnumeration    = errors.New("serial: port enumeration failed")
)

// Error kind names, stable across releases so remote callers can match on them.
const (
	KindInvalidConfiguration = "InvalidConfiguration"
	KindDeviceUnavailable    = "DeviceUnavailable"
	KindHandleNotFound       = "HandleNotFound"
	KindEncoding             = "EncodingError"
	KindConnectionLost       = "ConnectionLost"
	KindSessionLimit         = "SessionLimitExceeded"
	KindPortNotAllowed       = "PortNotAllowed"
	KindBufferTooLarge       = "BufferTooLarge"
	KindManagerClosed        = "ManagerClosed"
	KindEnumeration          = "EnumerationFailed"
	KindCanceled             = "Canceled"
	KindInternal             = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidConfiguration, KindInvalidConfiguration},
	{ErrDeviceUnavailable, KindDeviceUnavailable},
	{ErrHandleNotFound, KindHandleNotFound},
	{ErrEncoding, KindEncoding},
	{ErrConnectionLost, KindConnectionLost},
	{ErrSessionLimit, KindSessionLimit},
	{ErrPortNotAllowed, KindPortNotAllowed},
	{ErrBufferTooLarge, KindBufferTooLarge},
	{ErrManagerClosed, KindManagerClosed},
	{ErrEnumeration, KindEnumeration},
}

// KindOf returns the kind name of the first sentinel err wraps.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if isContextErr(err) {
		return KindCanceled
	}
	return KindInternal
}
