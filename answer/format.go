package answer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/armatrix/toolhost/mcp"
)

// titleKeys name the field used as a record's headline, in priority order.
var titleKeys = []string{"title", "name", "subject", "summary", "filename", "path", "text"}

// detailKeys are shown after the headline when present.
var detailKeys = []string{
	"id", "number", "state", "status", "author", "user", "owner", "channel",
	"repository", "mimeType", "modifiedTime", "updated_at", "created_at", "date", "url", "link",
}

// listKeys hold record lists inside wrapper objects.
var listKeys = []string{"items", "results", "files", "messages", "issues", "pages", "entries", "records", "data"}

const maxFieldLen = 200

// FormatResult renders a tool result as readable text. Lists of records are
// bulleted with their headline and key details; other JSON shapes become a
// key/value dump; non-JSON text is returned trimmed.
func FormatResult(res *mcp.CallResult, maxRecords int) string {
	if res == nil {
		return ""
	}
	data := res.StructuredContent
	if data == nil {
		text := strings.TrimSpace(res.Text())
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return text
		}
	}
	return formatValue(data, maxRecords)
}

func formatValue(v any, maxRecords int) string {
	switch t := v.(type) {
	case []any:
		return formatRecords(t, maxRecords)
	case map[string]any:
		for _, k := range listKeys {
			if list, ok := t[k].([]any); ok {
				return formatRecords(list, maxRecords)
			}
		}
		return dump(t)
	case nil:
		return ""
	default:
		return scalar(t)
	}
}

func formatRecords(list []any, maxRecords int) string {
	if len(list) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, item := range list {
		if maxRecords > 0 && i == maxRecords {
			fmt.Fprintf(&sb, "... and %d more\n", len(list)-maxRecords)
			break
		}
		sb.WriteString("- ")
		rec, ok := item.(map[string]any)
		if !ok {
			sb.WriteString(scalar(item))
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(formatRecord(rec))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatRecord(rec map[string]any) string {
	title := ""
	for _, k := range titleKeys {
		if v, ok := rec[k]; ok && isScalar(v) && scalar(v) != "" {
			title = scalar(v)
			break
		}
	}
	var details []string
	for _, k := range detailKeys {
		if v, ok := rec[k]; ok && isScalar(v) && scalar(v) != "" && scalar(v) != title {
			details = append(details, k+": "+scalar(v))
		}
	}
	if title == "" && len(details) == 0 {
		return inline(rec)
	}
	if title == "" {
		return strings.Join(details, ", ")
	}
	if len(details) == 0 {
		return title
	}
	return title + " (" + strings.Join(details, ", ") + ")"
}

// inline renders every scalar field of rec as sorted key: value pairs.
func inline(rec map[string]any) string {
	keys := sortedKeys(rec)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if isScalar(rec[k]) {
			parts = append(parts, k+": "+scalar(rec[k]))
		}
	}
	return strings.Join(parts, ", ")
}

// dump flattens nested objects into dotted key: value lines.
func dump(m map[string]any) string {
	var lines []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for _, k := range sortedKeys(t) {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, t[k])
			}
		case []any:
			items := make([]string, 0, len(t))
			for _, it := range t {
				if isScalar(it) {
					items = append(items, scalar(it))
				} else {
					b, _ := json.Marshal(it)
					items = append(items, truncate(string(b)))
				}
			}
			lines = append(lines, prefix+": "+strings.Join(items, ", "))
		default:
			lines = append(lines, prefix+": "+scalar(t))
		}
	}
	walk("", m)
	return strings.Join(lines, "\n")
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool, json.Number, nil:
		return true
	}
	return false
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return truncate(strings.TrimSpace(t))
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return truncate(fmt.Sprint(t))
	}
}

func truncate(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	return s[:maxFieldLen] + "..."
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
