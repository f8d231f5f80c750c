// Package chunk splits raw document text into bounded, hashable passages
// for ingestion into the vector index.
//
// Splitting is heading-aware: level-1 headings partition the document into
// sections, level-2 headings partition sections into subsections. Bodies
// that fit within 1.5x the target size become a single chunk; larger
// bodies go through a sentence-aware token splitter. Documents without
// headings are token-split directly.
//
// Chunk identity is the SHA-256 hash of the exact chunk text, so
// re-running the splitter on unchanged input reproduces the same hashes
// and re-ingestion can be deduplicated.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// CharsPerToken is the rough character-per-token estimate used for
// sizing chunks without a tokenizer round trip.
const CharsPerToken = 4

// DefaultTargetTokens is the default chunk size target.
const DefaultTargetTokens = 800

// Chunk is a bounded, hashable unit of ingested text with source metadata.
// Immutable once created; identity is ContentHash.
type Chunk struct {
	Content     string
	ContentHash string
	Chapter     string
	Section     string
	Subsection  string
	ChunkIndex  int
}

// Splitter produces chunks from raw document text.
type Splitter struct {
	targetChars int
}

// NewSplitter creates a Splitter targeting roughly targetTokens per chunk.
// Non-positive values fall back to DefaultTargetTokens.
func NewSplitter(targetTokens int) *Splitter {
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	return &Splitter{targetChars: targetTokens * CharsPerToken}
}

var (
	h1Pattern       = regexp.MustCompile(`(?m)^# +(.+?)\s*$`)
	h2Pattern       = regexp.MustCompile(`(?m)^## +(.+?)\s*$`)
	sentencePattern = regexp.MustCompile(`(?:[.!?])\s+`)
)

// section is an intermediate unit between heading extraction and chunking.
type section struct {
	title string
	body  string
}

// Split splits content into chunks tagged with the given chapter and
// section metadata. Level-1 heading titles override the section field;
// level-2 titles populate the subsection field. Empty content yields
// zero chunks; produced chunks are never empty strings.
func (s *Splitter) Split(content, chapter, sectionName string) []Chunk {
	var chunks []Chunk
	index := 0

	emit := func(text, sec, sub string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Content:     text,
			ContentHash: HashContent(text),
			Chapter:     chapter,
			Section:     sec,
			Subsection:  sub,
			ChunkIndex:  index,
		})
		index++
	}

	// emitSized splits oversized bodies through the token splitter.
	// prefix carries the subsection heading into each piece so the hash
	// covers the exact stored text.
	emitSized := func(body, sec, sub, prefix string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if len(body) <= s.targetChars*3/2 {
			emit(prefix+body, sec, sub)
			return
		}
		for _, piece := range s.splitByTokens(body) {
			emit(prefix+piece, sec, sub)
		}
	}

	for _, h1 := range headingSections(content, h1Pattern) {
		subs := headingSections(h1.body, h2Pattern)
		if len(subs) == 0 {
			emitSized(h1.body, h1.title, "", "")
			continue
		}

		// Text before the first level-2 heading belongs to the section itself.
		if pre := h1.body[:h2Pattern.FindStringIndex(h1.body)[0]]; strings.TrimSpace(pre) != "" {
			emitSized(pre, h1.title, "", "")
		}
		for _, h2 := range subs {
			emitSized(h2.body, h1.title, h2.title, "### "+h2.title+"\n")
		}
	}

	// No level-1 headings at all: token-split the whole document with the
	// caller-supplied metadata.
	if len(chunks) == 0 {
		for _, piece := range s.splitByTokens(content) {
			emit(piece, sectionName, "")
		}
	}

	return chunks
}

// headingSections slices content into (title, body) pairs, one per
// heading match. Text before the first heading is not returned; the
// caller decides what to do with it.
func headingSections(content string, pattern *regexp.Regexp) []section {
	matches := pattern.FindAllStringSubmatchIndex(content, -1)
	sections := make([]section, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, section{
			title: content[m[2]:m[3]],
			body:  content[m[1]:end],
		})
	}
	return sections
}

// splitByTokens accumulates sentence-like units into chunks of at most
// targetChars characters. Units are sentences when sentence boundaries
// exist, otherwise lines, otherwise words. A single unit longer than the
// budget is hard-split by character count.
func (s *Splitter) splitByTokens(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	units := splitSentences(content)
	if len(units) <= 1 {
		if strings.Contains(content, "\n") {
			units = strings.Split(content, "\n")
		} else {
			units = strings.Fields(content)
		}
	}

	var chunks []string
	var buf strings.Builder
	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			chunks = append(chunks, text)
		}
		buf.Reset()
	}

	for _, unit := range units {
		need := len(unit)
		if buf.Len() > 0 {
			need += buf.Len() + 1
		}
		if need > s.targetChars && buf.Len() > 0 {
			flush()
		}
		if len(unit) > s.targetChars {
			// Hard-split a single oversized unit by character count.
			flush()
			for start := 0; start < len(unit); start += s.targetChars {
				end := min(start+s.targetChars, len(unit))
				if piece := strings.TrimSpace(unit[start:end]); piece != "" {
					chunks = append(chunks, piece)
				}
			}
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(unit)
	}
	flush()

	return chunks
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(content string) []string {
	bounds := sentencePattern.FindAllStringIndex(content, -1)
	if len(bounds) == 0 {
		return []string{content}
	}

	sentences := make([]string, 0, len(bounds)+1)
	start := 0
	for _, b := range bounds {
		// b[0]+1 keeps the terminating punctuation character.
		sentences = append(sentences, strings.TrimSpace(content[start:b[0]+1]))
		start = b[1]
	}
	if rest := strings.TrimSpace(content[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// HashContent returns the hex SHA-256 of content, the dedup key for chunks.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EstimateTokens estimates the token count of text using the
// CharsPerToken heuristic.
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}
