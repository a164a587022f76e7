package parser

import "testing"

func feedAll(p *Parser, chunks []string) (thinking, content string) {
	for _, c := range chunks {
		out := p.Feed(c)
		thinking += out.Thinking
		content += out.Content
	}
	return thinking, content
}

func TestS1SplitTagAcrossChunks(t *testing.T) {
	p := New()
	feedAll(p, []string{"<thi", "nk>a", "</think>b"})
	thinking, content, calls := p.Finalize()
	if thinking != "a" {
		t.Fatalf("expected thinking %q, got %q", "a", thinking)
	}
	if content != "b" {
		t.Fatalf("expected content %q, got %q", "b", content)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no tool calls, got %v", calls)
	}
}

func TestS2OrphanedCloseTagReclassifies(t *testing.T) {
	p := New()
	var sawReclassified bool
	for _, c := range []string{"x", "</think>y"} {
		out := p.Feed(c)
		if out.IsReclassified {
			sawReclassified = true
		}
	}
	if !sawReclassified {
		t.Fatal("expected a reclassification signal")
	}
	thinking, content, _ := p.Finalize()
	if thinking != "xy" {
		t.Fatalf("expected thinking %q, got %q", "xy", thinking)
	}
	if content != "" {
		t.Fatalf("expected empty content, got %q", content)
	}
}

func TestS3ToolCallInFencedBlock(t *testing.T) {
	p := New()
	feedAll(p, []string{"```xml\n<tool_call>{\"name\":\"t\",\"arguments\":{\"k\":1}}</tool_call>\n```"})
	_, content, calls := p.Finalize()
	if len(calls) != 1 || calls[0].Name != "t" {
		t.Fatalf("expected one tool call named t, got %+v", calls)
	}
	if content != "" && content != "\n" {
		t.Fatalf("expected no leftover tool_call text, got %q", content)
	}
}

func TestThinkTagLiteralInsideFencedBlockStaysContent(t *testing.T) {
	p := New()
	feedAll(p, []string{"```\n<think>not real</think>\n```"})
	thinking, content, _ := p.Finalize()
	if thinking != "" {
		t.Fatalf("expected no thinking from a tag inside a fenced block, got %q", thinking)
	}
	want := "```\n<think>not real</think>\n```"
	if content != want {
		t.Fatalf("expected fenced block to pass through verbatim as content, got %q", content)
	}
}

func TestPartialCodeFenceSplitAcrossChunksIsNotLeaked(t *testing.T) {
	p := New()
	thinking, content := feedAll(p, []string{"foo", "`", "``bar"})
	if thinking != "" {
		t.Fatalf("expected no thinking, got %q", thinking)
	}
	if content != "foo```bar" {
		t.Fatalf("expected fence split across chunks to reassemble, got %q", content)
	}
}

func TestNoThinkTagsPassThroughAsContent(t *testing.T) {
	p := New()
	feedAll(p, []string{"hello ", "world"})
	thinking, content, _ := p.Finalize()
	if thinking != "" {
		t.Fatalf("expected no thinking, got %q", thinking)
	}
	if content != "hello world" {
		t.Fatalf("expected content %q, got %q", "hello world", content)
	}
}

func TestMalformedToolCallIsSkipped(t *testing.T) {
	text := "before <tool_call>not json</tool_call> after"
	out, calls := ExtractToolCalls(text)
	if len(calls) != 0 {
		t.Fatalf("expected malformed call to be skipped, got %v", calls)
	}
	if out != "before  after" {
		t.Fatalf("expected match removed, got %q", out)
	}
}
