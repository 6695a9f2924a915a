package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFiller(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sure! Here is the plan.", "Here is the plan."},
		{"Certainly, the answer is 4. I hope this helps!", "The answer is 4."},
		{"As an AI language model, I cannot browse.", "I cannot browse."},
		{"The sum is 5.\n\nLet me know if you have any other questions.", "The sum is 5."},
		{"Great question! Of course. It depends.", "It depends."},
		{"Sure thing, it works", "Sure thing, it works"},
		{"```go\nfmt.Println()\n```", "```go\nfmt.Println()\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFiller(tt.in))
		})
	}
}

func TestFixCodeBlocks(t *testing.T) {
	in := "Here:\n```\n    func main() {\n        fmt.Println(1)\n    }\n```\nDone."
	want := "Here:\n```go\nfunc main() {\n    fmt.Println(1)\n}\n```\nDone."
	assert.Equal(t, want, FixCodeBlocks(in))

	labelled := "  ```python\n  x = 1\n  ```"
	assert.Equal(t, "```python\nx = 1\n```", FixCodeBlocks(labelled))
}

func TestFixCodeBlocks_Unterminated(t *testing.T) {
	assert.Equal(t, "```bash\necho hi\n```", FixCodeBlocks("```\necho hi"))
}

func TestGuessLanguage(t *testing.T) {
	tests := []struct {
		code, want string
	}{
		{"def f(self):\n    return self.x", "python"},
		{"package main\n\nfunc main() {}", "go"},
		{"SELECT * FROM users", "sql"},
		{"console.log(x)", "javascript"},
		{"#include <vector>\nstd::vector<int> v;", "cpp"},
		{"hello world", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessLanguage(tt.code))
		})
	}
}

func TestNormalizeMath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2+2=4", "2 + 2 = 4"},
		{"x*3 - 1=  8", "x * 3 - 1 = 8"},
		{"10-4", "10 - 4"},
		{"x = -3", "x = -3"},
		{"a>=b", "a >= b"},
		{"1 + 2 + 3", "1 + 2 + 3"},
		{"```\na=b+c\n```", "```\na=b+c\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMath(tt.in))
		})
	}
}

func TestTighten(t *testing.T) {
	in := "I think I'd start by profiling.  Basically, the cache was cold.\n\n\n\nTo be honest, it took a week."
	want := "I'd start by profiling. The cache was cold.\n\nIt took a week."
	assert.Equal(t, want, Tighten(in))
}

func TestPostprocess_Styles(t *testing.T) {
	assert.Equal(t, "Total: 3 + 4 = 7", Postprocess("Sure! Total: 3+4=7", StyleMath))
	assert.Equal(t, "```javascript\nconst x = 1\n```", Postprocess("Of course!\n```\n  const x = 1\n```", StyleCode))
	assert.Equal(t, "We shipped it.", Postprocess("Honestly, we shipped it.", StyleInterview))
	assert.Equal(t, "3+4", Postprocess("3+4", StylePlain))
}
