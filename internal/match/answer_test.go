package match

import (
	"errors"
	"testing"
)

func TestParseFinalAnswer(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"plain", "Final Answer: 7", "7", false},
		{"reasoning first", "e4 controls the centre.\nFinal Answer: 12", "12", false},
		{"trailing whitespace", "thinking\nFinal Answer: 3  \n\n\t", "3", false},
		{"crlf", "thinking\r\nFinal Answer: 4\r\n", "4", false},
		{"no space after colon", "Final Answer:5", "5", false},
		{"token not validated here", "Final Answer: e4", "e4", false},
		{"answer not on last line", "Final Answer: 3\nhope that helps", "", true},
		{"two tokens", "Final Answer: 3 4", "", true},
		{"missing token", "Final Answer:", "", true},
		{"lowercase marker", "final answer: 3", "", true},
		{"leading text on line", "My Final Answer: 3", "", true},
		{"empty", "   \n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFinalAnswer(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrIllegalResponse) {
					t.Fatalf("expected ErrIllegalResponse, got %v (token %q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
