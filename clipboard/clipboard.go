package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no system clipboard is reachable (no
// xclip, xsel or wl-copy on Linux).
var ErrUnsupported = errors.New("clipboard unavailable")

func Available() bool { return !cb.Unsupported }

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}
