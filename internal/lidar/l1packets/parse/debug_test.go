package parse

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_Streams(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	defer SetLogWriters(nil, nil, nil)

	opsf("ops %d", 1)
	diagf("diag %d", 2)
	tracef("trace %d", 3)

	for name, tc := range map[string]struct {
		buf  *bytes.Buffer
		want string
	}{
		"ops":   {&ops, "ops 1"},
		"diag":  {&diag, "diag 2"},
		"trace": {&trace, "trace 3"},
	} {
		out := tc.buf.String()
		if !strings.Contains(out, tc.want) {
			t.Errorf("%s stream = %q, want %q", name, out, tc.want)
		}
		if !strings.Contains(out, "[vlp16]") {
			t.Errorf("%s stream missing prefix: %q", name, out)
		}
	}
}

func TestSetLogWriters_Disable(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, &buf, &buf)
	SetLogWriters(nil, nil, nil)

	if opsLogger != nil || diagLogger != nil || traceLogger != nil {
		t.Fatal("all loggers should be nil after SetLogWriters(nil, nil, nil)")
	}
	// No logger configured: must not panic.
	opsf("discarded %d", 1)
	diagf("discarded %d", 2)
	tracef("discarded %d", 3)
	if buf.Len() != 0 {
		t.Errorf("disabled streams wrote %q", buf.String())
	}
}

func TestNewLogger_NilWriter(t *testing.T) {
	if newLogger("[test] ", nil) != nil {
		t.Error("expected nil logger for nil writer")
	}
}
