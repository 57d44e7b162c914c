package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"flakeview/pkg/errors"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"
)

var (
	// Output is where human readable output goes.
	Output io.Writer = os.Stdout
	// ErrOutput receives ShowError.
	ErrOutput io.Writer = os.Stderr

	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// Interactive reports whether stdin and stdout are terminals.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	padding := (width - len(title) - 2) / 2
	if padding < 0 {
		padding = 0
	}
	right := width - 2 - padding - len(title)
	if right < 0 {
		right = 0
	}

	fmt.Fprintln(Output, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(Output, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", right),
	)
	fmt.Fprintln(Output, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays an error. Application errors show their code, context
// and suggestions.
func ShowError(err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(ErrOutput, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		return
	}

	fmt.Fprintf(ErrOutput, "\n%s %s %s\n", ColorError("ERROR:"), ColorDim("["+string(appErr.Code)+"]"), appErr.Message)

	for _, key := range appErr.ContextKeys() {
		fmt.Fprintf(ErrOutput, "  %-12s %s\n", ColorDim(key+":"), formatValue(appErr.Context[key]))
	}

	if appErr.Cause != nil {
		fmt.Fprintf(ErrOutput, "  %-12s %s\n", ColorDim("cause:"), rootCause(appErr.Cause))
	}

	if len(appErr.Suggestions) > 0 {
		fmt.Fprintln(ErrOutput)
		for _, suggestion := range appErr.Suggestions {
			fmt.Fprintf(ErrOutput, "  %s %s\n", ColorInfo("TIP:"), suggestion)
		}
	}
}

// rootCause prints the innermost message without repeating wrapped AppErrors.
func rootCause(err error) string {
	var appErr *errors.AppError
	for errors.As(err, &appErr) {
		if appErr.Cause == nil {
			return appErr.Message
		}
		err = appErr.Cause
	}
	return err.Error()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return ColorDim("none")
		}
		return strings.Join(val, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorInfo("INFO:"), message)
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Fprintf(Output, "\n%s %s\n", ColorBold("▶"), ColorBold(title))
	fmt.Fprintln(Output, strings.Repeat("─", 50))
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Output, "  %-20s %s\n", ColorDim(key+":"), value)
}

// PrintBlock prints multi-line content such as a PEM block verbatim.
func PrintBlock(content string) {
	fmt.Fprintln(Output, strings.TrimRight(content, "\n"))
}

// NewTable returns a borderless table writing to Output.
func NewTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(Output)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
