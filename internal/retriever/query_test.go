package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsComparisonQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"difference between tcp and udp", true},
		{"relationship between supply and demand", true},
		{"compare rust and go", true},
		{"how does photosynthesis work", true},
		{"tcp vs udp", true},
		{"python versus ruby", true},
		{"quantum computing", false},
		{"history of television", false},
		{"universe", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsComparisonQuery(tt.query), "query %q", tt.query)
	}
}

func TestSubQueries(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"difference between tcp and udp", []string{"tcp", "udp"}},
		{"relationship between supply and demand", []string{"supply", "demand"}},
		{"compare rust and go", []string{"rust", "go"}},
		{"tcp vs udp", []string{"tcp", "udp"}},
		{"python versus ruby?", []string{"python", "ruby"}},
		{"how does photosynthesis work", nil},
		{"quantum computing", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubQueries(tt.query), "query %q", tt.query)
	}
}
