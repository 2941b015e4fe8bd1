package proc

import "strings"

// ShellQuote wraps s in single quotes, escaping embedded single quotes with
// the '\'' form so the result survives word splitting and expansion.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteCommand renders a command and its arguments as a shell-safe string.
func QuoteCommand(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellQuote(command))
	for _, a := range args {
		parts = append(parts, ShellQuote(a))
	}
	return strings.Join(parts, " ")
}
