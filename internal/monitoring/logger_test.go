package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })
	Logf("run %d", 3)
	if got != "run 3" {
		t.Errorf("custom logger got %q, want %q", got, "run 3")
	}

	got = ""
	SetLogger(nil)
	Logf("muted")
	if got != "" {
		t.Errorf("no-op logger should not reach the previous logger, got %q", got)
	}
}

func TestPrefixedFollowsCurrentLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Prefixed("[migrate] ")

	var got string
	SetLogger(func(format string, v ...interface{}) { got = fmt.Sprintf(format, v...) })
	logf("version %d", 1)
	if got != "[migrate] version 1" {
		t.Errorf("prefixed logger got %q", got)
	}
}
