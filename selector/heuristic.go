package selector

import (
	"strings"
	"unicode"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/internal/schema"
	"github.com/armatrix/toolhost/mcp"
)

// DefaultQuery is used when nothing useful is left of the question.
const DefaultQuery = "recent content"

// verbDescriptions maps tool name fragments to generic descriptions, in
// priority order.
var verbDescriptions = []struct {
	fragments   []string
	description string
}{
	{[]string{"search"}, "search for content using keywords"},
	{[]string{"query"}, "query records matching a filter"},
	{[]string{"list"}, "list available items"},
	{[]string{"get", "read", "fetch"}, "retrieve a specific item by identifier"},
	{[]string{"create", "add", "new"}, "create a new item"},
	{[]string{"send", "post", "reply"}, "send a message"},
	{[]string{"update", "edit", "modify"}, "update an existing item"},
	{[]string{"delete", "remove"}, "delete an item"},
}

// Describe returns the tool's own description or, when the server supplied
// none, one derived from its name.
func Describe(t mcp.ToolDescriptor) string {
	if d := strings.TrimSpace(t.Description); d != "" {
		return d
	}
	name := strings.ToLower(t.Name)
	for _, v := range verbDescriptions {
		for _, f := range v.fragments {
			if strings.Contains(name, f) {
				return v.description
			}
		}
	}
	return "run " + strings.NewReplacer("_", " ", "-", " ").Replace(t.Name)
}

// IsSearchTool reports whether a tool name looks like a keyword search.
func IsSearchTool(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "search") || strings.Contains(n, "query")
}

// heuristicTool prefers a search-style tool and otherwise takes the first
// candidate.
func heuristicTool(candidates []mcp.ToolDescriptor) mcp.ToolDescriptor {
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), "search") {
			return c
		}
	}
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), "query") {
			return c
		}
	}
	return candidates[0]
}

var questionWords = map[string]bool{
	"what": true, "whats": true, "who": true, "whom": true, "where": true, "when": true,
	"why": true, "how": true, "which": true, "is": true, "are": true, "was": true,
	"were": true, "do": true, "does": true, "did": true, "can": true, "could": true,
	"would": true, "should": true, "will": true, "the": true, "a": true, "an": true,
	"my": true, "me": true, "i": true, "in": true, "on": true, "of": true, "for": true,
	"about": true, "show": true, "find": true, "tell": true, "get": true, "list": true,
	"please": true, "any": true, "there": true, "to": true, "from": true, "with": true,
	"search": true, "look": true, "up": true, "give": true, "and": true, "or": true,
	"it": true, "have": true, "has": true, "all": true, "some": true, "our": true,
}

// ExtractQuery strips question words and service names from question and
// returns what is left, or DefaultQuery.
func ExtractQuery(question, service string) string {
	stop := serviceWords(service)
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '\''
	})
	kept := words[:0]
	for _, w := range words {
		w = strings.Trim(w, "'-_")
		if w == "" || questionWords[w] || questionWords[strings.ReplaceAll(w, "'", "")] || stop[w] {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return DefaultQuery
	}
	return strings.Join(kept, " ")
}

func serviceWords(service string) map[string]bool {
	words := make(map[string]bool)
	if service == "" {
		return words
	}
	id, _ := auth.Canonical(service)
	for _, s := range []string{string(id), id.DisplayName(), service} {
		s = strings.ToLower(s)
		words[s] = true
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == ' ' || r == '_' }) {
			words[part] = true
		}
	}
	return words
}

// queryKeys are argument names tried in order for the search text.
var queryKeys = []string{"query", "q", "search", "keywords", "term", "text"}

// Arguments builds the call arguments for tool carrying query. The key is
// taken from the tool's input schema; tools without a schema get "query".
func Arguments(t mcp.ToolDescriptor, query string) map[string]any {
	obj := schema.Parse(t.InputSchema)
	if len(obj.Properties) == 0 {
		return map[string]any{"query": query}
	}
	for _, k := range queryKeys {
		if _, ok := obj.Properties[k]; ok {
			return map[string]any{k: query}
		}
	}
	for _, name := range obj.PropertyNames() {
		if obj.IsRequired(name) && obj.PropertyType(name) == "string" {
			return map[string]any{name: query}
		}
	}
	return map[string]any{}
}
