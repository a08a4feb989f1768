package binary

import (
	"fmt"
	"strings"
)

// IntegrityError reports an extracted binary whose digest does not match the
// expected value.
type IntegrityError struct {
	Binary    string
	Platform  string
	Arch      string
	Algorithm string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s (%s-%s): %s expected %s, got %s",
		e.Binary, e.Platform, e.Arch, e.Algorithm, e.Expected, e.Actual)
}

// VersionCheckError reports an installed binary that could not be run.
// This usually means the platform or architecture is wrong for the host.
type VersionCheckError struct {
	Binary   string
	Platform string
	Arch     string
	Output   string
	Err      error
}

func (e *VersionCheckError) Error() string {
	msg := fmt.Sprintf("%s failed its version check for %s-%s: %v", e.Binary, e.Platform, e.Arch, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg + "\ncheck that --platform and --arch match this machine"
}

func (e *VersionCheckError) Unwrap() error {
	return e.Err
}
