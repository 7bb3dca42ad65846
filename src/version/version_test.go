package version

import (
	"strings"
	"testing"
)

// TestVersionFlag checks that the version string carries the dev flag when
// one is set. The flag should be emptied on release branches.
func TestVersionFlag(t *testing.T) {
	if Flag != "" && !strings.HasSuffix(Version, Flag) && !strings.Contains(Version, Flag+"-") {
		t.Fatalf("Version %s does not carry flag %s", Version, Flag)
	}
}
