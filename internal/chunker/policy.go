package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var codeStart = regexp.MustCompile(`^(?:package \w+|import [\w"(]|func [\w(]|def \w+\(|class \w+[\s:({]|#include\s*[<"]|public (?:class|static|interface) |SELECT\s.+\sFROM\s|<\?php|#!/)`)

// File is content that should be uploaded as an attachment rather than posted inline.
type File struct {
	Name    string
	Content string
}

// Delivery is the outcome of planning: either ordered fragments or a single file.
type Delivery struct {
	Fragments []string
	File      *File
}

func (d Delivery) IsFile() bool { return d.File != nil }

// Policy decides how a reply reaches the channel.
type Policy struct {
	Limit         int
	FileThreshold int
	FileName      string
}

func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, FileThreshold: DefaultFileThreshold, FileName: DefaultFileName}
}

// Plan picks the delivery for text. Anything above FileThreshold characters
// becomes a file. A single fenced block is re-fenced per fragment, text with
// fences elsewhere keeps them balanced, and bare code is wrapped in a fence.
func (p Policy) Plan(text string) Delivery {
	if p.FileThreshold > 0 && utf8.RuneCountInString(text) > p.FileThreshold {
		name := p.FileName
		if name == "" {
			name = DefaultFileName
		}
		return Delivery{File: &File{Name: name, Content: text}}
	}
	var parts []string
	trimmed := strings.TrimSpace(text)
	if lang, body, ok := UnwrapFence(trimmed); ok {
		parts = SplitFenced(body, lang, p.Limit)
	} else if strings.Contains(text, fence) {
		// already fenced somewhere; never wrap it again
		parts = splitBalanced(text, p.Limit)
	} else if LooksLikeCode(trimmed) {
		parts = SplitFenced(trimmed, "", p.Limit)
	}
	if len(parts) == 0 {
		parts = Split(text, p.Limit)
	}
	return Delivery{Fragments: parts}
}

// LooksLikeCode reports whether text opens with a code fence or a source-language keyword.
func LooksLikeCode(text string) bool {
	return strings.HasPrefix(text, fence) || codeStart.MatchString(text)
}

// splitBalanced splits mixed prose and fenced code. A fragment that ends
// inside an open fence is closed, and the next fragment reopens it.
func splitBalanced(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	reserve := len(fence) + maxFenceLang + 1 + len("\n"+fence)
	eff := limit - reserve
	if eff < 1 {
		return Split(text, limit)
	}
	parts := split([]rune(text), eff, true)

	inFence := false
	lang := ""
	for i, p := range parts {
		prefix := ""
		if inFence {
			prefix = fence + lang + "\n"
		}
		inFence, lang = scanFences(p, inFence, lang)
		if inFence {
			p += "\n" + fence
		}
		parts[i] = prefix + p
	}
	return parts
}

// scanFences walks fence lines in s starting from the given state and
// returns whether a fence is still open at the end, with its language.
func scanFences(s string, open bool, lang string) (bool, string) {
	for _, line := range strings.Split(s, "\n") {
		l := strings.TrimSpace(line)
		if !strings.HasPrefix(l, fence) {
			continue
		}
		rest := l[len(fence):]
		if strings.Contains(rest, fence) {
			// inline ```x``` on one line
			continue
		}
		if open {
			open, lang = false, ""
			continue
		}
		open = true
		lang = strings.TrimSpace(rest)
		if len(lang) > maxFenceLang || strings.ContainsAny(lang, " \t") {
			lang = ""
		}
	}
	return open, lang
}
