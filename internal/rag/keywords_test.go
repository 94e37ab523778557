package rag

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want []string
	}{
		{"stopwords and short tokens", "Qual é o editor que o Lucas prefere?", []string{"editor", "lucas", "prefere"}},
		{"punctuation becomes space", "go,rust;zig", []string{"rust", "zig"}},
		{"dedupe keeps first", "Go go GOLANG golang", []string{"golang"}},
		{"accents kept", "Você já foi à Lisboa? Ótimo!", []string{"lisboa", "ótimo"}},
		{"only stopwords", "para com você", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractKeywords(tc.msg)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tc.msg, got, tc.want)
			}
		})
	}
}

func TestExtractKeywords_Capped(t *testing.T) {
	msg := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	got := ExtractKeywords(msg)
	if len(got) != MaxKeywords {
		t.Fatalf("len = %d, want %d", len(got), MaxKeywords)
	}
	if got[0] != "alpha" || got[9] != "juliet" {
		t.Errorf("got %v, want the first ten in order", got)
	}
}
