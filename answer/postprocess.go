package answer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	leadingFiller = regexp.MustCompile(`(?i)^\s*(sure|certainly|of course|absolutely|great question|good question|okay)[!.,]+\s+`)
	aiDisclaimer  = regexp.MustCompile(`(?i)\bas an ai( language model)?,?\s*`)
	trailingOffer = regexp.MustCompile(`(?i)\s*(i hope (this|that) helps|let me know if you (have any|need any|want) [^.!?\n]*|feel free to ask [^.!?\n]*|happy to help)[.!]*\s*$`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// StripFiller removes stock assistant openers, disclaimers and sign-offs.
func StripFiller(s string) string {
	for {
		next := leadingFiller.ReplaceAllString(s, "")
		next = trailingOffer.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	s = aiDisclaimer.ReplaceAllString(s, "")
	return capitalizeFirst(strings.TrimSpace(s))
}

// Postprocess applies StripFiller and the style-specific cleanup.
func Postprocess(s string, style Style) string {
	s = StripFiller(s)
	switch style {
	case StyleCode:
		s = FixCodeBlocks(s)
	case StyleMath:
		s = NormalizeMath(s)
	case StyleInterview:
		s = Tighten(s)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

// FixCodeBlocks labels unlabelled fences with a guessed language and removes
// the indentation shared by every line of a block.
func FixCodeBlocks(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "```") {
			out = append(out, lines[i])
			continue
		}
		lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				break
			}
			body = append(body, lines[j])
		}
		body = dedent(body)
		if lang == "" {
			lang = GuessLanguage(strings.Join(body, "\n"))
		}
		out = append(out, "```"+lang)
		out = append(out, body...)
		out = append(out, "```")
		i = j
	}
	return strings.Join(out, "\n")
}

func dedent(lines []string) []string {
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimRight(strings.TrimPrefix(l, prefix), " \t")
	}
	return out
}

var languageHints = []struct {
	lang  string
	hints []string
}{
	{"go", []string{"package ", "func ", ":= "}},
	{"python", []string{"def ", "import ", "elif ", "self."}},
	{"rust", []string{"fn ", "let mut ", "impl "}},
	{"java", []string{"public class ", "public static void", "System.out"}},
	{"typescript", []string{"interface ", ": string", ": number"}},
	{"javascript", []string{"function ", "const ", "=> ", "console.log"}},
	{"cpp", []string{"#include", "std::"}},
	{"sql", []string{"SELECT ", "select ", "INSERT INTO", "CREATE TABLE"}},
	{"bash", []string{"#!/bin/", "echo ", "sudo ", "$ "}},
}

// GuessLanguage picks a fence label from code content. The language with the
// most matching hints wins; "text" when none match.
func GuessLanguage(code string) string {
	best, bestScore := "text", 0
	for _, l := range languageHints {
		score := 0
		for _, h := range l.hints {
			if strings.Contains(code, h) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = l.lang, score
		}
	}
	return best
}

var (
	binaryOp = regexp.MustCompile(`([0-9a-zA-Z)\]])\s*([+*/=×÷^<>]|<=|>=|!=)\s*([0-9a-zA-Z(\[-])`)
	minusOp  = regexp.MustCompile(`([0-9)\]])\s*-\s*([0-9(\[])`)
	spaces   = regexp.MustCompile(`(\S)[ \t]{2,}`)
)

// NormalizeMath puts single spaces around binary operators outside code.
func NormalizeMath(s string) string {
	return outsideCode(s, func(line string) string {
		for {
			next := binaryOp.ReplaceAllString(line, "$1 $2 $3")
			next = minusOp.ReplaceAllString(next, "$1 - $2")
			next = spaces.ReplaceAllString(next, "$1 ")
			if next == line {
				return line
			}
			line = next
		}
	})
}

var hedges = regexp.MustCompile(`(?i)\b(i think( that)?|i believe( that)?|in my opinion,?|basically,?|to be honest,?|honestly,?|i would say( that)?)\s+`)

// Tighten removes hedging phrases and collapses blank lines for
// interview-style answers.
func Tighten(s string) string {
	s = outsideCode(s, func(line string) string {
		line = hedges.ReplaceAllString(line, "")
		line = spaces.ReplaceAllString(line, "$1 ")
		return capitalizeSentences(line)
	})
	return blankRuns.ReplaceAllString(s, "\n\n")
}

// outsideCode applies fn to every line that is not inside a fenced block.
func outsideCode(s string, fn func(string) string) string {
	lines := strings.Split(s, "\n")
	inCode := false
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			inCode = !inCode
			continue
		}
		if !inCode {
			lines[i] = fn(l)
		}
	}
	return strings.Join(lines, "\n")
}

func capitalizeFirst(s string) string {
	for i, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
		return s
	}
	return s
}

// capitalizeSentences upper-cases the first letter of the line and of every
// sentence that follows terminal punctuation and a space.
func capitalizeSentences(s string) string {
	runes := []rune(s)
	upper, ended := true, false
	for i, r := range runes {
		switch {
		case unicode.IsSpace(r):
			if ended {
				upper = true
			}
		case upper && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			upper, ended = false, false
		case r == '.' || r == '!' || r == '?':
			upper, ended = false, true
		default:
			upper, ended = false, false
		}
	}
	return string(runes)
}
