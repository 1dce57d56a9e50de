package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter approximates one token per four characters.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TiktokenCounter counts exact cl100k_base tokens.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding: %w", err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if c == nil || c.encoding == nil || text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// NewTokenCounter selects a counter by name: "estimate" (default) or "tiktoken".
func NewTokenCounter(kind string) (TokenCounter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "estimate":
		return EstimateCounter{}, nil
	case "tiktoken", "cl100k_base":
		return NewTiktokenCounter()
	default:
		return nil, fmt.Errorf("unknown token counter %q", kind)
	}
}
