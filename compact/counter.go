package compact

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
	"github.com/zeebo/blake3"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Fixed estimates for content whose size in tokens does not follow from
// its byte length.
const (
	messageOverhead = 4
	imageTokens     = 300
	documentTokens  = 500
)

// Counter estimates the token size of text and messages.
type Counter interface {
	CountText(text string) int
	CountMessages(msgs []unifiedllm.Message) int
}

// CharCounter estimates tokens from character counts. It approximates
// GPT-family and Claude tokenizers closely enough for budgeting.
type CharCounter struct {
	// CharsPerToken defaults to 4 when zero.
	CharsPerToken float64
}

// CountText implements Counter.
func (c CharCounter) CountText(text string) int {
	ratio := c.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return int(math.Ceil(float64(len(text)) / ratio))
}

// CountMessages implements Counter.
func (c CharCounter) CountMessages(msgs []unifiedllm.Message) int {
	total := 0
	for _, m := range msgs {
		total += countMessage(c.CountText, m)
	}
	return total
}

func countMessage(countText func(string) int, m unifiedllm.Message) int {
	n := messageOverhead
	for _, part := range m.Content {
		switch part.Kind {
		case unifiedllm.ContentText, unifiedllm.ContentCompaction:
			n += countText(part.Text)
		case unifiedllm.ContentThinking, unifiedllm.ContentRedactedThinking:
			if part.Thinking != nil {
				n += countText(part.Thinking.Text)
			}
		case unifiedllm.ContentToolCall:
			if part.ToolCall != nil {
				n += countText(part.ToolCall.Name) + countText(string(part.ToolCall.Arguments))
			}
		case unifiedllm.ContentToolResult:
			if part.ToolResult != nil {
				n += countText(part.ToolResult.Content)
			}
		case unifiedllm.ContentImage:
			n += imageTokens
		case unifiedllm.ContentDocument:
			n += documentTokens
		}
	}
	return n
}

// TiktokenCounter counts tokens with a BPE encoding. Counts for text seen
// before are served from an LRU cache keyed by a hash of the text.
type TiktokenCounter struct {
	enc   *tiktoken.Tiktoken
	cache *lru.Cache[[32]byte, int]
}

// DefaultCacheSize is the number of text counts TiktokenCounter remembers.
const DefaultCacheSize = 4096

// NewTiktokenCounter loads the encoding used for model. Unknown models use
// cl100k_base. Loading may fetch the encoding file on first use.
func NewTiktokenCounter(model string, cacheSize int) (*TiktokenCounter, error) {
	encoding := "cl100k_base"
	if info := unifiedllm.GetModelInfo(model); info != nil && info.Encoding != "" {
		encoding = info.Encoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encoding, err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating token cache: %w", err)
	}
	return &TiktokenCounter{enc: enc, cache: cache}, nil
}

// CountText implements Counter.
func (c *TiktokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	key := blake3.Sum256([]byte(text))
	if n, ok := c.cache.Get(key); ok {
		return n
	}
	n := len(c.enc.Encode(text, nil, nil))
	c.cache.Add(key, n)
	return n
}

// CountMessages implements Counter.
func (c *TiktokenCounter) CountMessages(msgs []unifiedllm.Message) int {
	total := 0
	for _, m := range msgs {
		total += countMessage(c.CountText, m)
	}
	return total
}
