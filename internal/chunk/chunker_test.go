package chunk

import (
	"strings"
	"testing"
)

func TestSplitEmptyContent(t *testing.T) {
	s := NewSplitter(800)
	for _, content := range []string{"", "   ", "\n\n\t"} {
		if got := s.Split(content, "ch", "sec"); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", content, len(got))
		}
	}
}

func TestSplitSingleHeading(t *testing.T) {
	s := NewSplitter(800)
	chunks := s.Split("# Intro\nROS 2 is a robotics middleware.", "Chapter 1", "")

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Content != "ROS 2 is a robotics middleware." {
		t.Errorf("content = %q", c.Content)
	}
	if c.Chapter != "Chapter 1" || c.Section != "Intro" || c.Subsection != "" {
		t.Errorf("metadata = %q/%q/%q", c.Chapter, c.Section, c.Subsection)
	}
	if c.ContentHash != HashContent(c.Content) {
		t.Error("hash does not match content")
	}
	if c.ChunkIndex != 0 {
		t.Errorf("index = %d, want 0", c.ChunkIndex)
	}
}

func TestSplitSubsectionsGetPrefix(t *testing.T) {
	content := "# Nodes\nIntro text about nodes.\n\n## Lifecycle\nNodes have lifecycles.\n\n## Parameters\nNodes accept parameters."
	s := NewSplitter(800)
	chunks := s.Split(content, "Chapter 2", "")

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	// Preamble before the first subsection keeps the section metadata only.
	if chunks[0].Content != "Intro text about nodes." || chunks[0].Subsection != "" {
		t.Errorf("preamble chunk = %+v", chunks[0])
	}

	if chunks[1].Content != "### Lifecycle\nNodes have lifecycles." {
		t.Errorf("subsection content = %q", chunks[1].Content)
	}
	if chunks[1].Section != "Nodes" || chunks[1].Subsection != "Lifecycle" {
		t.Errorf("subsection metadata = %q/%q", chunks[1].Section, chunks[1].Subsection)
	}
	if chunks[2].Subsection != "Parameters" {
		t.Errorf("second subsection = %q", chunks[2].Subsection)
	}

	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}
}

func TestSplitNoHeadingsUsesCallerSection(t *testing.T) {
	s := NewSplitter(800)
	chunks := s.Split("Plain text without any headings.", "Chapter 3", "Appendix")

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Section != "Appendix" {
		t.Errorf("section = %q, want caller-supplied", chunks[0].Section)
	}
}

func TestSplitToleranceBoundary(t *testing.T) {
	// 50 tokens = 200 chars target, 300 chars tolerance.
	s := NewSplitter(50)

	within := "# A\n" + strings.Repeat("x", 290)
	if got := s.Split(within, "ch", ""); len(got) != 1 {
		t.Errorf("body within tolerance split into %d chunks, want 1", len(got))
	}

	over := "# A\n" + strings.Repeat("word . ", 100) // ~700 chars of sentences
	chunks := s.Split(over, "ch", "")
	if len(chunks) < 2 {
		t.Errorf("oversized body split into %d chunks, want >= 2", len(chunks))
	}
	for _, c := range chunks {
		if c.Content == "" {
			t.Error("produced empty chunk")
		}
	}
}

func TestSplitByTokensSentenceBoundaries(t *testing.T) {
	s := NewSplitter(25) // 100 chars
	text := "First sentence here. Second sentence follows it. Third one closes the paragraph. Fourth keeps going further."
	pieces := s.splitByTokens(text)

	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want >= 2", len(pieces))
	}
	for _, p := range pieces {
		if len(p) > 150 {
			t.Errorf("piece exceeds budget: %d chars", len(p))
		}
	}
	// No text lost aside from joining whitespace.
	joined := strings.Join(pieces, " ")
	if !strings.Contains(joined, "Fourth keeps going") {
		t.Error("tail sentence dropped")
	}
}

func TestSplitByTokensHardSplit(t *testing.T) {
	s := NewSplitter(25) // 100 chars
	// One giant unbreakable token.
	pieces := s.splitByTokens(strings.Repeat("a", 250))

	if len(pieces) != 3 {
		t.Fatalf("got %d pieces, want 3", len(pieces))
	}
	if len(pieces[0]) != 100 || len(pieces[2]) != 50 {
		t.Errorf("piece lengths = %d/%d/%d", len(pieces[0]), len(pieces[1]), len(pieces[2]))
	}
}

func TestHashContentDeterministic(t *testing.T) {
	a := HashContent("same input")
	b := HashContent("same input")
	if a != b {
		t.Error("hash not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == HashContent("different input") {
		t.Error("distinct inputs collided")
	}
}

func TestSplitStableAcrossRuns(t *testing.T) {
	content := "# One\nBody one text. More text here.\n\n## Sub\nSub body text."
	s := NewSplitter(800)

	first := s.Split(content, "ch", "")
	second := s.Split(content, "ch", "")

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ContentHash != second[i].ContentHash {
			t.Errorf("chunk %d hash differs between runs", i)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("EstimateTokens = %d, want 100", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}
