package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrSelectionAborted is returned when the user cancels the device picker.
var ErrSelectionAborted = errors.New("device selection aborted")

// FindDevice returns the device whose name matches name exactly, falling back
// to a case-insensitive substring match.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	lower := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no device named %q", ErrCaptureUnavailable, name)
}

// SelectDevice presents an interactive device picker on the terminal.
// The first entry is the system default, returned as nil.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices found", ErrCaptureUnavailable)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	labels := make([]string, 0, len(devices)+1)
	labels = append(labels, "System default")
	for _, d := range devices {
		label := d.Name
		if IsBluetooth(d.Name) {
			label += " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		labels = append(labels, label)
	}

	cursor := 0
	render := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select input device (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
		for i, l := range labels {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", l)
			} else {
				fmt.Printf("    %s\r\n", l)
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				fmt.Print("\r\n")
				if cursor == 0 {
					return nil, nil
				}
				return &devices[cursor-1], nil
			case 3, 'q': // Ctrl+C
				fmt.Print("\r\n")
				return nil, ErrSelectionAborted
			case 'j':
				cursor = min(cursor+1, len(labels)-1)
			case 'k':
				cursor = max(cursor-1, 0)
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A':
				cursor = max(cursor-1, 0)
			case 'B':
				cursor = min(cursor+1, len(labels)-1)
			}
		}

		fmt.Printf("\x1b[%dA", len(labels)+2)
		render()
	}
}
