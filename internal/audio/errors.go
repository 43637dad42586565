package audio

import "errors"

var (
	// ErrNoDevices means the catalog has no qualifying endpoint for a side.
	ErrNoDevices = errors.New("no audio devices found")
	// ErrNegotiationFailed means no candidate rate opened on both endpoints.
	ErrNegotiationFailed = errors.New("no compatible sample rate")
	// ErrStreamOpenFailed means the driver rejected an open at the
	// negotiated rate.
	ErrStreamOpenFailed = errors.New("stream open failed")
	// ErrDeviceUnavailable means a selected endpoint is no longer present.
	ErrDeviceUnavailable = errors.New("device unavailable")
)

// Reason returns the user-facing explanation for a configuration error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoDevices):
		return "no audio devices found"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device unavailable"
	case errors.Is(err, ErrNegotiationFailed), errors.Is(err, ErrStreamOpenFailed):
		return "no compatible sample rate"
	default:
		return err.Error()
	}
}
