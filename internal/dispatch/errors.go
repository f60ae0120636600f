package dispatch

import "errors"

// Reasons an audience action is not executed. Rejections are caused by
// audience input; the rest are failures.
var (
	// ErrInvalidColor means the color token is neither a known name nor hex.
	ErrInvalidColor = errors.New("dispatch: not a color")

	// ErrInvalidArgument means a power or brightness argument is malformed.
	ErrInvalidArgument = errors.New("dispatch: invalid argument")

	// ErrUnknownLamp means the lamp is not configured.
	ErrUnknownLamp = errors.New("dispatch: unknown lamp")

	// ErrDeviceNotFound means the configured device name is not on the bridge.
	ErrDeviceNotFound = errors.New("dispatch: device not found on bridge")
)

func isRejection(err error) bool {
	return errors.Is(err, ErrInvalidColor) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrUnknownLamp)
}
