package platform

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mediumErrnos are read errors that plausibly clear on a retry of the same
// sectors: the classic bad-block EIO, a device that dropped off the bus, and
// a timed-out request.
var mediumErrnos = []unix.Errno{
	unix.EIO,
	unix.ENXIO,
	unix.ETIMEDOUT,
}

// IsMediumError reports whether err is a transient medium read failure.
// Anything else (including wrapped *os.PathError causes, which errors.Is
// unwraps) is treated as fatal by callers.
func IsMediumError(err error) bool {
	for _, errno := range mediumErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
