package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCompleteObject(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}]}]`))
	assert.Len(t, chunks, 1)
	assert.Equal(t, "Hello", chunks[0].Candidates[0].Content.Parts[0].Text)
}

func TestParseIncompleteChunks(t *testing.T) {
	p := New(nil)
	assert.Empty(t, p.Feed([]byte(`[{"candidates":[{"content"`)))
	chunks := p.Feed([]byte(`:{"parts":[{"text":"Hi"}],"role":"model"}}]}]`))
	assert.Len(t, chunks, 1)
	assert.Equal(t, "Hi", chunks[0].Candidates[0].Content.Parts[0].Text)
}

func TestMultipleObjects(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"finishReason":"STOP"}]},{"candidates":[{"finishReason":"MAX_TOKENS"}]}]`))
	assert.Len(t, chunks, 2)
	assert.Equal(t, "STOP", chunks[0].Candidates[0].FinishReason)
	assert.Equal(t, "MAX_TOKENS", chunks[1].Candidates[0].FinishReason)
}

func TestEscapedStrings(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"content":{"parts":[{"text":"a \"quoted\" } brace"}],"role":"model"}}]}]`))
	assert.Len(t, chunks, 1)
	assert.Equal(t, `a "quoted" } brace`, chunks[0].Candidates[0].Content.Parts[0].Text)
}

func TestWhitespaceHandling(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte("[ \n  {\"candidates\":[{\"finishReason\":\"STOP\"}]}  \n]"))
	assert.Len(t, chunks, 1)
}

func TestStreamingWithUsageMetadata(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}],"usageMetadata":{"promptTokenCount":5}}]`))
	assert.Len(t, chunks, 1)
	assert.Equal(t, 5, *chunks[0].UsageMetadata.PromptTokenCount)
}

func TestParserReset(t *testing.T) {
	p := New(nil)
	p.buf = append(p.buf, make([]byte, 100*1024)...)
	p.Reset()
	assert.Equal(t, initialBufferCapacity, cap(p.buf))
	assert.Equal(t, 0, p.Pending())

	small := New(nil)
	small.buf = append(small.buf, []byte("abc")...)
	origCap := cap(small.buf)
	small.Reset()
	assert.Equal(t, origCap, cap(small.buf))
}

func TestObjectSplitAcrossMultipleFeeds(t *testing.T) {
	p := New(nil)
	full := `[{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}]}]`
	var got []string
	for i := 0; i < len(full); i++ {
		chunks := p.Feed([]byte{full[i]})
		for range chunks {
			got = append(got, "x")
		}
	}
	assert.Len(t, got, 1)
}

func TestNestedObjects(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"content":{"parts":[{"functionCall":{"name":"f","args":{"a":{"b":1}}}}],"role":"model"}}]}]`))
	assert.Len(t, chunks, 1)
	assert.Equal(t, "f", chunks[0].Candidates[0].Content.Parts[0].FunctionCall.Name)
}

func TestMalformedObjectSkippedNotFatal(t *testing.T) {
	p := New(nil)
	chunks := p.Feed([]byte(`[{"candidates":[{"finishReason":"STOP"}]},{not valid json},{"candidates":[{"finishReason":"MAX_TOKENS"}]}]`))
	assert.Len(t, chunks, 2)
}

func TestFragmentationEquivalence(t *testing.T) {
	full := []byte(`[{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}],"usageMetadata":{"promptTokenCount":5}},{"candidates":[{"finishReason":"STOP"}]}]`)

	whole := New(nil)
	wholeChunks := whole.Feed(full)

	fragmented := New(nil)
	var fragChunks []struct{}
	splits := []int{1, 7, 40, 90}
	prev := 0
	var collected int
	for _, s := range splits {
		if s > len(full) {
			continue
		}
		cs := fragmented.Feed(full[prev:s])
		collected += len(cs)
		prev = s
	}
	cs := fragmented.Feed(full[prev:])
	collected += len(cs)
	_ = fragChunks

	assert.Len(t, wholeChunks, 2)
	assert.Equal(t, len(wholeChunks), collected)
}
