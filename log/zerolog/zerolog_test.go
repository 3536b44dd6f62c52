package zerolog

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/unkn0wn-root/flowstore/logging"
)

func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	lg := Logger{L: zerolog.New(&buf).Level(zerolog.InfoLevel)}

	lg.Debug("hidden", nil)
	lg.Warn("fetch failed", logging.Fields{"store": "prices", "err": errors.New("boom")})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written: %s", out)
	}
	for _, want := range []string{`"level":"warn"`, `"store":"prices"`, `"err":"boom"`, `"message":"fetch failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestNopIsSilent(t *testing.T) {
	Logger{L: zerolog.Nop()}.Error("x", logging.Fields{"a": 1})
}
