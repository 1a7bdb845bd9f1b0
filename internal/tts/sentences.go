package tts

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// SentenceParser splits text into speakable sentences. It understands Latin
// and full-width CJK sentence punctuation and can reduce markdown to plain
// text first.
type SentenceParser struct {
	skipCodeBlocks bool
	abbreviations  map[string]bool
	titleAbbrevs   map[string]bool
}

// ParserOption is a functional option for configuring the parser.
type ParserOption func(*SentenceParser)

// WithCodeBlocks enables or disables code block inclusion in PlainText.
func WithCodeBlocks(include bool) ParserOption {
	return func(p *SentenceParser) {
		p.skipCodeBlocks = !include
	}
}

// WithAbbreviations adds words whose trailing period does not end a sentence.
func WithAbbreviations(words ...string) ParserOption {
	return func(p *SentenceParser) {
		for _, w := range words {
			p.abbreviations[strings.ToLower(strings.TrimSuffix(w, "."))] = true
		}
	}
}

// NewSentenceParser creates a parser with default settings.
func NewSentenceParser(opts ...ParserOption) *SentenceParser {
	p := &SentenceParser{
		skipCodeBlocks: true,
		abbreviations:  defaultAbbreviations(),
		titleAbbrevs:   defaultTitleAbbreviations(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sentences splits text into trimmed, non-empty sentences. Blank lines
// always end a sentence.
func (p *SentenceParser) Sentences(text string) []string {
	var out []string
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		out = append(out, p.split(para)...)
	}
	return out
}

// PlainText reduces markdown to speakable text, one block per paragraph.
func (p *SentenceParser) PlainText(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	p.walkNode(doc, reader.Source(), &buf)

	return strings.TrimSpace(buf.String())
}

func (p *SentenceParser) walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if p.skipCodeBlocks {
			return
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		buf.WriteString("\n\n")
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteString(" ")
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.Image:
		// alt text only
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			p.walkNode(c, source, buf)
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			p.walkNode(c, source, buf)
		}
		buf.WriteString("\n\n")
		return

	case *ast.ThematicBreak:
		buf.WriteString("\n\n")
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		p.walkNode(c, source, buf)
	}
}

func (p *SentenceParser) split(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		end, ok := p.boundary(runes, i)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// boundary reports whether a sentence ends with the punctuation at pos and
// returns the index just past it, closing quotes and brackets included.
func (p *SentenceParser) boundary(runes []rune, pos int) (int, bool) {
	r := runes[pos]
	if !isTerminator(r) {
		return 0, false
	}

	end := pos + 1
	for end < len(runes) && isTerminator(runes[end]) {
		end++
	}
	for end < len(runes) && isCloser(runes[end]) {
		end++
	}

	if isFullWidthTerminator(r) {
		return end, true
	}

	// 3.14, example.com, e.g.x
	if end < len(runes) && !unicode.IsSpace(runes[end]) {
		return 0, false
	}

	if r == '.' {
		dots := 0
		for i := pos; i < len(runes) && runes[i] == '.'; i++ {
			dots++
		}
		switch {
		case pos > 0 && runes[pos-1] == '.':
			return 0, false
		case dots > 1:
			// an ellipsis ends a sentence only before a capital letter
			return end, nextIsUpper(runes, end)
		case p.isTitleAbbreviation(runes, pos):
			return 0, false
		case p.isAbbreviation(runes, pos):
			return end, nextIsUpper(runes, end)
		}
	}
	return end, true
}

func (p *SentenceParser) wordBefore(runes []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) && runes[start] != '(' {
		start--
	}
	return strings.ToLower(string(runes[start+1 : pos]))
}

func (p *SentenceParser) isAbbreviation(runes []rune, pos int) bool {
	return p.abbreviations[p.wordBefore(runes, pos)]
}

func (p *SentenceParser) isTitleAbbreviation(runes []rune, pos int) bool {
	return p.titleAbbrevs[p.wordBefore(runes, pos)]
}

func nextIsUpper(runes []rune, pos int) bool {
	for pos < len(runes) && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos < len(runes) && unicode.IsUpper(runes[pos])
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isFullWidthTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '」', '』', '）', '”', '’':
		return true
	}
	return false
}

func defaultAbbreviations() map[string]bool {
	return map[string]bool{
		"etc": true, "vs": true, "e.g": true, "i.e": true, "approx": true,
		"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
		"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
		"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
		"nov": true, "dec": true,
	}
}

func defaultTitleAbbreviations() map[string]bool {
	return map[string]bool{
		"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
		"sr": true, "jr": true, "st": true,
	}
}
