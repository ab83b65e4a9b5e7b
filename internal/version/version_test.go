package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "v1.2.3"
	defer func() { Version = old }()

	s := String()
	if !strings.HasPrefix(s, "lineup v1.2.3 (") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, "go="+GoVersion) {
		t.Errorf("String() should carry the go version, got %q", s)
	}
}
