package tts

import (
	"reflect"
	"strings"
	"testing"
)

func TestSentenceParser_Sentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "Simple sentences",
			text: "This is a sentence. This is another sentence! And a third one?",
			want: []string{"This is a sentence.", "This is another sentence!", "And a third one?"},
		},
		{
			name: "Title abbreviation",
			text: "Dr. Smith arrived. He sat.",
			want: []string{"Dr. Smith arrived.", "He sat."},
		},
		{
			name: "Decimal number",
			text: "Pi is 3.14 today.",
			want: []string{"Pi is 3.14 today."},
		},
		{
			name: "Full-width punctuation",
			text: "こんにちは。元気ですか？はい",
			want: []string{"こんにちは。", "元気ですか？", "はい"},
		},
		{
			name: "Ellipsis before lowercase",
			text: "Wait... what? Really!",
			want: []string{"Wait... what?", "Really!"},
		},
		{
			name: "Closing quote stays with sentence",
			text: `He said "stop." Then left.`,
			want: []string{`He said "stop."`, "Then left."},
		},
		{
			name: "Blank line ends sentence",
			text: "First line\n\nSecond   line\nwraps",
			want: []string{"First line", "Second line wraps"},
		},
		{
			name: "Abbreviation mid-sentence",
			text: "I like apples, pears, etc. and more.",
			want: []string{"I like apples, pears, etc. and more."},
		},
		{
			name: "Abbreviation ends sentence",
			text: "Bring pens etc. Then go.",
			want: []string{"Bring pens etc.", "Then go."},
		},
		{
			name: "Empty",
			text: "  \n ",
			want: nil,
		},
	}

	p := NewSentenceParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Sentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSentenceParser_WithAbbreviations(t *testing.T) {
	text := "See Fig. 3 for details."

	if got := NewSentenceParser().Sentences(text); len(got) != 2 {
		t.Errorf("default parser = %q, want a split after Fig.", got)
	}

	got := NewSentenceParser(WithAbbreviations("Fig.")).Sentences(text)
	if !reflect.DeepEqual(got, []string{text}) {
		t.Errorf("with abbreviation = %q, want one sentence", got)
	}
}

func TestSentenceParser_PlainText(t *testing.T) {
	markdown := "# Title\n\nSome *bold* text with [a link](https://example.com) and `code`.\n\n" +
		"```go\nfunc main() {}\n```\n\n- item one\n- item two\n\n<div>raw</div>\n"

	got := NewSentenceParser().PlainText(markdown)
	want := "Title\n\nSome bold text with a link and code.\n\nitem one\n\nitem two"
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}

	withCode := NewSentenceParser(WithCodeBlocks(true)).PlainText(markdown)
	if !strings.Contains(withCode, "func main() {}") {
		t.Errorf("PlainText() with code blocks = %q, want code included", withCode)
	}
}
