package slack

import "testing"

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@U0123ABCD> latest developments in LangChain", "latest developments in LangChain"},
		{"latest developments <@U0123ABCD>", "latest developments"},
		{"<@U0123ABCD> <@U0456EFGH> compare RAG frameworks", "compare RAG frameworks"},
		{"<@U0123ABCD>", ""},
		{"no mention at all", "no mention at all"},
	}

	for _, test := range tests {
		if got := stripMentions(test.in); got != test.want {
			t.Errorf("stripMentions(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
