package testing

import (
	"fmt"
	"io"
	"os"
)

// Capture runs f with os.Stdout and os.Stderr redirected to pipes and returns
// what was written to each. The originals are restored before returning.
func Capture(f func()) (stdout string, stderr string, err error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutR, stdoutW, errOut := os.Pipe()
	if errOut != nil {
		return "", "", fmt.Errorf("failed to create stdout pipe: %w", errOut)
	}
	stderrR, stderrW, errErr := os.Pipe()
	if errErr != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return "", "", fmt.Errorf("failed to create stderr pipe: %w", errErr)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW
	defer func() {
		os.Stdout = originalStdout
		os.Stderr = originalStderr
	}()

	f()

	// Close the write ends so ReadAll can complete.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	outBytes, errRead := io.ReadAll(stdoutR)
	if errRead != nil {
		return "", "", fmt.Errorf("failed to read captured stdout: %w", errRead)
	}
	errBytes, errRead := io.ReadAll(stderrR)
	if errRead != nil {
		return "", "", fmt.Errorf("failed to read captured stderr: %w", errRead)
	}

	_ = stdoutR.Close()
	_ = stderrR.Close()
	return string(outBytes), string(errBytes), nil
}
