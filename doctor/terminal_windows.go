//go:build windows

package doctor

// Raw mode is restored by x/term on Windows.
func resetTerminal() {}
