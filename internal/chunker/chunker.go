// Package chunker splits model output into fragments that fit the chat
// platform's per-message limit.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultLimit         = 2000
	DefaultFileThreshold = 8000
	DefaultFileName      = "response.md"

	fence = "```"
	// longer language tags are dropped when a fence is reopened
	maxFenceLang = 16
)

// Split breaks text into fragments of at most limit characters, preferring
// to break at the last newline or space before the limit. Whitespace at a
// break point is dropped. A run with no break point is hard-cut at limit.
func Split(text string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	return split([]rune(text), limit, false)
}

// SplitFenced splits text so that every fragment, once wrapped in a code
// fence tagged with lang, still fits in limit characters. Breaks prefer line
// ends and keep the indentation of the following line.
func SplitFenced(text, lang string, limit int) []string {
	open := fence + lang + "\n"
	closing := "\n" + fence
	eff := limit - utf8.RuneCountInString(open) - utf8.RuneCountInString(closing)
	if eff < 1 {
		return Split(text, limit)
	}
	body := strings.Trim(text, "\n")
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var parts []string
	if utf8.RuneCountInString(body) <= eff {
		parts = []string{body}
	} else {
		parts = split([]rune(body), eff, true)
	}
	for i, p := range parts {
		parts[i] = open + p + closing
	}
	return parts
}

// UnwrapFence reports whether s is exactly one fenced code block and returns
// its language tag and body.
func UnwrapFence(s string) (lang, body string, ok bool) {
	if !strings.HasPrefix(s, fence) || !strings.HasSuffix(s, fence) || len(s) < 2*len(fence) {
		return "", "", false
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return "", "", false
	}
	lang = strings.TrimSpace(s[len(fence):nl])
	if strings.ContainsAny(lang, " \t`") {
		return "", "", false
	}
	end := len(s) - len(fence)
	if end < nl+1 {
		return "", "", false
	}
	body = strings.TrimRight(s[nl+1:end], "\n")
	if strings.Contains(body, fence) {
		return "", "", false
	}
	return lang, body, true
}

func split(r []rune, limit int, keepIndent bool) []string {
	var parts []string
	for len(r) > limit {
		i := breakIndex(r, limit, keepIndent)
		if i <= 0 {
			parts = appendNonBlank(parts, strings.TrimRightFunc(string(r[:limit]), unicode.IsSpace))
			r = r[limit:]
			if !keepIndent {
				r = trimLeft(r)
			}
			continue
		}
		parts = appendNonBlank(parts, strings.TrimRightFunc(string(r[:i]), unicode.IsSpace))
		if keepIndent && r[i] == '\n' {
			r = r[i+1:]
		} else {
			r = trimLeft(r[i:])
		}
	}
	return appendNonBlank(parts, string(r))
}

// breakIndex finds the last newline or space at or before limit, never at 0.
// With keepIndent a newline wins over a later space.
func breakIndex(r []rune, limit int, keepIndent bool) int {
	if keepIndent {
		for j := limit; j > 0; j-- {
			if r[j] == '\n' {
				return j
			}
		}
	}
	for j := limit; j > 0; j-- {
		if r[j] == '\n' || r[j] == ' ' {
			return j
		}
	}
	return -1
}

func trimLeft(r []rune) []rune {
	i := 0
	for i < len(r) && unicode.IsSpace(r[i]) {
		i++
	}
	return r[i:]
}

func appendNonBlank(parts []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return parts
	}
	return append(parts, s)
}
