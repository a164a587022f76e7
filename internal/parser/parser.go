// Package parser implements a stateful, chunk-fed classifier that splits raw
// LLM output into chain-of-thought and final content, and extracts embedded
// tool_call blocks once the stream has fully accumulated.
package parser

import (
	"regexp"
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Chunk is the per-input-chunk result of feeding the parser one slice of
// streamed text.
type Chunk struct {
	Thinking       string
	Content        string
	IsReclassified bool
}

// Parser incrementally classifies streamed text into thinking vs. content,
// tolerating tags split across chunk boundaries.
type Parser struct {
	buffer          strings.Builder
	thinking        strings.Builder
	content         strings.Builder
	insideThinkTag  bool
	insideCodeBlock bool
}

// New returns a parser ready to consume the first chunk of a stream.
func New() *Parser {
	return &Parser{}
}

// codeFence is the code block delimiter; while toggled on, tag matching is
// disabled per spec.md §4.B rule 1.
const codeFence = "```"

// partialFenceWaitLimit bounds how long a trailing one/two-backtick suffix
// is held waiting for the rest of a possible fence, per spec.md §4.B rule 2.
const partialFenceWaitLimit = 1000

// Feed consumes one chunk of streamed text and returns what can safely be
// classified now. Anything that might still be part of a split tag or a
// split code fence is held in the internal buffer until a later Feed or
// Finalize resolves it.
func (p *Parser) Feed(text string) Chunk {
	p.buffer.WriteString(text)
	buf := p.buffer.String()
	p.buffer.Reset()

	out := Chunk{}

	for {
		fenceIdx := strings.Index(buf, codeFence)

		tagIdx := -1
		tagIsClose := false
		if !p.insideCodeBlock {
			switch {
			case p.insideThinkTag:
				tagIdx = strings.Index(buf, thinkClose)
				tagIsClose = true
			default:
				openIdx := strings.Index(buf, thinkOpen)
				closeIdx := strings.Index(buf, thinkClose)
				switch {
				case openIdx >= 0 && (closeIdx < 0 || openIdx <= closeIdx):
					tagIdx = openIdx
				case closeIdx >= 0:
					tagIdx = closeIdx
					tagIsClose = true
				}
			}
		}

		switch {
		case fenceIdx >= 0 && (tagIdx < 0 || fenceIdx <= tagIdx):
			// Rule 1: code fence has highest priority. The fence marker
			// itself is emitted (it is literal text the caller should
			// still see), then tag matching toggles off/on around it.
			p.appendCurrent(buf[:fenceIdx+len(codeFence)], &out)
			buf = buf[fenceIdx+len(codeFence):]
			p.insideCodeBlock = !p.insideCodeBlock
			continue

		case tagIdx >= 0 && p.insideThinkTag:
			// Rule 3: full </think> while inside a think tag.
			p.thinking.WriteString(buf[:tagIdx])
			out.Thinking += buf[:tagIdx]
			buf = buf[tagIdx+len(thinkClose):]
			p.insideThinkTag = false
			continue

		case tagIdx >= 0 && !tagIsClose:
			// Rule 5: full <think> while not inside a think tag.
			out.Content += buf[:tagIdx]
			p.content.WriteString(buf[:tagIdx])
			buf = buf[tagIdx+len(thinkOpen):]
			p.insideThinkTag = true
			continue

		case tagIdx >= 0:
			// Rule 7: orphaned close tag. The assistant emitted a stray
			// </think> with no matching open. Everything accumulated as
			// content so far, plus this chunk with the tag stripped out,
			// is reclassified as thinking.
			reclassified := p.content.String() + buf[:tagIdx] + buf[tagIdx+len(thinkClose):]
			p.thinking.Reset()
			p.thinking.WriteString(reclassified)
			p.content.Reset()

			return Chunk{
				Thinking:       reclassified,
				Content:        "",
				IsReclassified: true,
			}

		default:
			return p.flushRemainder(buf, out)
		}
	}
}

// appendCurrent writes s to whichever accumulator (thinking or content) the
// parser is currently inside, per the "emitted with the current state"
// wording of spec.md §4.B rule 1.
func (p *Parser) appendCurrent(s string, out *Chunk) {
	if s == "" {
		return
	}
	if p.insideThinkTag {
		p.thinking.WriteString(s)
		out.Thinking += s
	} else {
		p.content.WriteString(s)
		out.Content += s
	}
}

// flushRemainder handles a buffer with no more complete code fence or think
// tag in it: it first checks for a partial fence suffix to wait on (rule
// 2), then — unless inside a code block, where tag matching is disabled —
// holds any partial think-tag suffix, finally flushing whatever is left
// safe to emit.
func (p *Parser) flushRemainder(buf string, out Chunk) Chunk {
	if holdForPartialFence(buf) {
		p.buffer.WriteString(buf)
		return out
	}
	if p.insideCodeBlock {
		p.appendCurrent(buf, &out)
		return out
	}
	if p.insideThinkTag {
		safe, held := splitOnPartialSuffix(buf, thinkClose)
		p.thinking.WriteString(safe)
		out.Thinking += safe
		p.buffer.WriteString(held)
		return out
	}
	safe, held := splitOnPartialSuffix(buf, thinkOpen, thinkClose)
	out.Content += safe
	p.content.WriteString(safe)
	p.buffer.WriteString(held)
	return out
}

// holdForPartialFence reports whether buf ends with a one- or two-backtick
// suffix that might be the start of a split "```" and is short enough that
// waiting for more data is worthwhile (spec.md §4.B rule 2). By the time
// this runs, buf contains no complete "```" (Feed's loop would already have
// consumed it), so the trailing run of backticks is at most two.
func holdForPartialFence(buf string) bool {
	if len(buf) >= partialFenceWaitLimit {
		return false
	}
	n := 0
	for n < len(buf) && n < len(codeFence)-1 && buf[len(buf)-1-n] == '`' {
		n++
	}
	return n > 0
}

// Finalize returns the fully accumulated thinking and content, and the tool
// calls extracted from content. Call this once the stream has ended.
func (p *Parser) Finalize() (thinking string, content string, calls []ToolCall) {
	remainder := p.buffer.String()
	p.content.WriteString(remainder)
	p.buffer.Reset()

	content, calls = ExtractToolCalls(p.content.String())
	return strings.TrimSpace(p.thinking.String()), content, calls
}

// splitOnPartialSuffix returns (safe, held) where held is the longest
// suffix of buf that is a strict prefix of any of the given tags, so a tag
// split across chunk boundaries is never leaked into output.
func splitOnPartialSuffix(buf string, tags ...string) (safe, held string) {
	maxHeld := 0
	for _, tag := range tags {
		for n := len(tag) - 1; n > 0; n-- {
			if n > len(buf) {
				continue
			}
			if buf[len(buf)-n:] == tag[:n] && n > maxHeld {
				maxHeld = n
			}
		}
	}
	if maxHeld == 0 {
		return buf, ""
	}
	return buf[:len(buf)-maxHeld], buf[len(buf)-maxHeld:]
}

// toolCallPattern matches an optional surrounding fenced code block around a
// <tool_call> element; dot matches newline, case-insensitive.
var toolCallPattern = regexp.MustCompile(`(?is)(?:` + "```" + `(?:xml)?\s*)?<tool_call>(.*?)</tool_call>(?:\s*` + "```" + `)?`)
