package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Expected failures get a one-line diagnostic; unexpected ones carry the cause.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", ae.Message))

	if ae.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ae.Suggestion))
	}

	if ae.Category == CategoryInternal && ae.Cause != nil && ae.Cause.Error() != ae.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", ae.Cause))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ae.Code))

	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	ae, ok := As(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", ae.Code),
		slog.String("message", ae.Message),
		slog.String("category", string(ae.Category)),
		slog.String("severity", string(ae.Severity)),
		slog.Bool("retryable", ae.Retryable),
	}
	if ae.Cause != nil {
		attrs = append(attrs, slog.String("cause", ae.Cause.Error()))
	}
	for _, k := range sortedKeys(ae.Details) {
		attrs = append(attrs, slog.String("detail_"+k, ae.Details[k]))
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
