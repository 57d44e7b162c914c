package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"flakeview/pkg/errors"
)

// capture redirects Output and ErrOutput and disables color for the duration of a test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOutput, oldErr, oldColor := Output, ErrOutput, supportsColor
	Output, ErrOutput, supportsColor = &buf, &buf, false
	t.Cleanup(func() {
		Output, ErrOutput, supportsColor = oldOutput, oldErr, oldColor
	})
	return &buf
}

func TestColorFunc(t *testing.T) {
	originalSupportsColor := supportsColor
	defer func() {
		supportsColor = originalSupportsColor
	}()

	funcs := []func(string) string{
		ColorSuccess,
		ColorError,
		ColorWarning,
		ColorInfo,
		ColorProgress,
		ColorBold,
		ColorDim,
	}

	supportsColor = true
	for _, colorFunc := range funcs {
		if result := colorFunc("test text"); result == "test text" || !strings.Contains(result, "test text") {
			t.Errorf("Expected colored output containing the text, got %q", result)
		}
	}

	supportsColor = false
	for _, colorFunc := range funcs {
		if result := colorFunc("test text"); result != "test text" {
			t.Errorf("Expected plain text, got %q", result)
		}
	}
}

func TestShowError(t *testing.T) {
	t.Run("application error", func(t *testing.T) {
		buf := capture(t)

		cause := errors.SQLError("statement failed", "select * from missing", fmt.Errorf("Object 'MISSING' does not exist"))
		err := errors.Wrap(cause, errors.ErrCodeDeploymentHalted, `Deployment halted at view "b" (2 of 3)`).
			WithContext("view", "b").
			WithContext("pending", []string{"c"}).
			WithContext("applied", []string{}).
			WithSuggestions("Fix view \"b\" and re-run with --from b")

		ShowError(err)
		out := buf.String()

		for _, want := range []string{
			"[FVE4010]",
			`Deployment halted at view "b"`,
			"view:",
			"pending:",
			"c",
			"none",
			"cause:",
			"Object 'MISSING' does not exist",
			"TIP: Fix view",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Caused by") {
			t.Errorf("nested error text should not be repeated:\n%s", out)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		buf := capture(t)
		ShowError(fmt.Errorf("boom"))
		if got := buf.String(); !strings.Contains(got, "ERROR: boom") {
			t.Errorf("unexpected output %q", got)
		}
	})
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	ShowSuccess("done")
	ShowWarning("careful")
	ShowInfo("fyi")
	PrintKeyValue("Account", "acme")
	PrintBlock("-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n")

	out := buf.String()
	for _, want := range []string{"SUCCESS: done", "WARNING: careful", "INFO: fyi", "Account:", "acme", "abc\n-----END PUBLIC KEY-----\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowHeader(t *testing.T) {
	buf := capture(t)
	ShowHeader("Key Pair Generated")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if len(lines[0]) != len(lines[1]) {
		t.Errorf("header row is %d wide, border is %d", len(lines[1]), len(lines[0]))
	}

	buf.Reset()
	ShowHeader(strings.Repeat("x", 80))
	if !strings.Contains(buf.String(), strings.Repeat("x", 80)) {
		t.Error("long titles are printed in full")
	}
}

func TestNewTable(t *testing.T) {
	buf := capture(t)

	table := NewTable("#", "View", "Depends on")
	table.Append([]string{"1", "flight_emissions", ""})
	table.Append([]string{"3", "flights_from_home", "flight_emissions, flight_punctuality"})
	table.Render()

	out := buf.String()
	for _, want := range []string{"VIEW", "DEPENDS ON", "flights_from_home", "flight_emissions, flight_punctuality"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
