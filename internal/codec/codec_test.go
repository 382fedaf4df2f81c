package codec

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"logship/internal/model"
)

const exampleLine = `10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "curl/7.0"`

func TestParseExample(t *testing.T) {
	ev, err := Parse(exampleLine)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &model.LogEvent{
		PrimaryIP:  "10.0.0.1",
		Request:    "GET / HTTP/1.1",
		StatusCode: 200,
		Size:       512,
		UserAgent:  "curl/7.0",
		Timestamp:  1672531200,
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Fatalf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseForwardedFor(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		primary string
		alt     string
	}{
		{
			name:    "ipv4 pair",
			line:    `203.0.113.9, 10.1.2.3 - - [10/Oct/2023:13:55:36 +0200] "example.com" "GET /x HTTP/1.1" 301 0 "https://ref/" "UA"`,
			primary: "203.0.113.9",
			alt:     "10.1.2.3",
		},
		{
			name:    "invalid alt is dropped",
			line:    `203.0.113.9,unknown - - [10/Oct/2023:13:55:36 +0200] "-" "GET / HTTP/1.1" 200 1 "-" "-"`,
			primary: "203.0.113.9",
		},
		{
			name:    "ipv6 primary",
			line:    `2001:db8::7 - - [10/Oct/2023:13:55:36 +0000] "-" "GET / HTTP/1.1" 200 1 "-" "-"`,
			primary: "2001:db8::7",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse(tc.line)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if ev.PrimaryIP != tc.primary || ev.AltIP != tc.alt {
				t.Fatalf("ips = (%q, %q), want (%q, %q)", ev.PrimaryIP, ev.AltIP, tc.primary, tc.alt)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"garbage", "hello world", ErrMalformed},
		{"empty", "", ErrMalformed},
		{"bad primary ip", `not-an-ip - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "-"`, ErrBadIP},
		{"bad time", `10.0.0.1 - - [2023-01-01 00:00:00] "-" "GET / HTTP/1.1" 200 512 "-" "-"`, ErrBadTime},
		{"bad month", `10.0.0.1 - - [01/Foo/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "-"`, ErrBadTime},
		{"status overflow", `10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 70000 512 "-" "-"`, ErrBadNumber},
		{"size dash", `10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 - "-" "-"`, ErrBadNumber},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse(tc.line)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Parse err = %v, want %v", err, tc.want)
			}
			if ev != nil {
				t.Fatalf("rejected line produced an event: %+v", ev)
			}
		})
	}
}

func TestParseKeepsInternalQuotes(t *testing.T) {
	line := `10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET /q?x="y" HTTP/1.1" 200 5 "-" "Mozilla "quoted" UA"`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Request != `GET /q?x="y" HTTP/1.1` {
		t.Errorf("Request = %q", ev.Request)
	}
	if ev.UserAgent != `Mozilla "quoted" UA` {
		t.Errorf("UserAgent = %q", ev.UserAgent)
	}
}

func TestRoundTrip(t *testing.T) {
	lines := []string{
		exampleLine,
		`203.0.113.9, 10.1.2.3 - - [10/Oct/2023:13:55:36 +0200] "example.com" "GET /x HTTP/1.1" 301 0 "https://ref/" "UA/1.0 (X11)"`,
		`2001:db8::7 frank alice [31/Dec/2037:23:59:59 -0500] "api.local" "POST /v1 HTTP/2.0" 500 4294967295 "-" "-"`,
	}
	for _, line := range lines {
		first, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		second, err := Parse(Serialize(first))
		if err != nil {
			t.Fatalf("Parse(Serialize(%q)): %v", line, err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("round trip mismatch for %q (-first +second):\n%s", line, diff)
		}
	}
}

func TestReason(t *testing.T) {
	_, err := Parse(`x - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "-"`)
	if got := Reason(err); got != "bad_ip" {
		t.Fatalf("Reason = %q, want bad_ip", got)
	}
}

func writeLines(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.log")
	body := strings.Join(lines, "\n")
	if len(lines) > 0 {
		body += "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func repeat(line string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = line
	}
	return out
}

func TestValidateSource(t *testing.T) {
	mixed := append(repeat(exampleLine, 7), repeat("garbage line", 3)...)

	tests := []struct {
		name  string
		lines []string
		kind  VerdictKind
		ratio float64
	}{
		{"empty", nil, VerdictEmpty, 0},
		{"two lines", repeat(exampleLine, 2), VerdictTooShort, 1},
		{"three malformed of ten", mixed, VerdictLowConfidence, 0.7},
		{"all malformed", repeat("nope", 10), VerdictLowConfidence, 0},
		{"all good", repeat(exampleLine, 12), VerdictOK, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ValidateSource(writeLines(t, tc.lines), DefaultSampleSize, DefaultThreshold)
			if err != nil {
				t.Fatalf("ValidateSource: %v", err)
			}
			if v.Kind != tc.kind {
				t.Fatalf("Kind = %v, want %v (verdict %+v)", v.Kind, tc.kind, v)
			}
			if v.Ratio != tc.ratio {
				t.Fatalf("Ratio = %v, want %v", v.Ratio, tc.ratio)
			}
		})
	}
}

func TestValidateSourceSamplesAtMostSampleSize(t *testing.T) {
	lines := append(repeat(exampleLine, 10), repeat("garbage", 20)...)
	v, err := ValidateSource(writeLines(t, lines), 10, DefaultThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if v.Lines != 10 || !v.OK() {
		t.Fatalf("verdict = %+v, want 10 sampled lines and ok", v)
	}
}

func TestValidateSourceMissingFile(t *testing.T) {
	if _, err := ValidateSource(filepath.Join(t.TempDir(), "missing.log"), 10, 0.75); err == nil {
		t.Fatal("expected error for missing file")
	}
}
