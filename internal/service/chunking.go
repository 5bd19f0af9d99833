package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

// ChunkOptions controls how source documents are split into retrievable units.
type ChunkOptions struct {
	// MaxTokens is the soft per-chunk ceiling, in estimated tokens.
	MaxTokens int
	// OverlapSentences is how many trailing sentences of a flushed chunk seed
	// the next chunk.
	OverlapSentences int
	// HardTokenCap is the absolute per-chunk ceiling. Content with no sentence
	// boundaries that estimates above it is force-split by word count.
	HardTokenCap int
	// ForceSplitWords is the piece size, in words, used for force splits.
	ForceSplitWords int
}

// DefaultChunkOptions provides sane defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxTokens:        500,
		OverlapSentences: 2,
		HardTokenCap:     6000,
		ForceSplitWords:  2000,
	}
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	def := DefaultChunkOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.OverlapSentences < 0 {
		o.OverlapSentences = def.OverlapSentences
	}
	if o.HardTokenCap <= 0 {
		o.HardTokenCap = def.HardTokenCap
	}
	if o.ForceSplitWords <= 0 {
		o.ForceSplitWords = def.ForceSplitWords
	}
	return o
}

var blankLineRe = regexp.MustCompile(`\n[ \t\r]*\n`)

// estimateTokens approximates the provider token count as ceil(bytes/3).
// Deliberately pessimistic so no chunk can exceed the provider's hard input
// limit after the estimate clears it.
func estimateTokens(text string) int {
	return (len(text) + 2) / 3
}

// Chunk splits text into bounded, overlapping chunk candidates. It is
// deterministic for identical input and options. Empty or whitespace-only
// input yields nil.
func Chunk(text string, opts ChunkOptions) []domain.ChunkCandidate {
	opts = opts.withDefaults()

	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}

	if estimateTokens(clean) <= opts.MaxTokens {
		return []domain.ChunkCandidate{{Content: clean, ChunkIndex: 0, Metadata: map[string]string{}}}
	}

	p := &chunkPacker{opts: opts}
	for _, para := range splitParagraphs(clean, opts.MaxTokens) {
		if heading, ok := detectHeading(para); ok {
			p.section = heading
		}

		if estimateTokens(para) <= opts.MaxTokens {
			p.add(para, "\n\n")
			continue
		}

		for _, sentence := range splitSentences(para) {
			if estimateTokens(sentence) > opts.HardTokenCap {
				// No sentence boundaries left to split on. Force-split by word
				// count with no overlap; a correctness backstop only.
				p.flush()
				p.carry = ""
				for _, piece := range forceSplitWords(sentence, opts.ForceSplitWords) {
					p.add(piece, " ")
					p.flush()
					p.carry = ""
				}
				continue
			}
			p.add(sentence, " ")
		}
	}
	p.flush()

	return p.chunks
}

// chunkPacker accumulates text pieces into chunks, carrying overlap sentences
// across flush boundaries.
type chunkPacker struct {
	opts    ChunkOptions
	chunks  []domain.ChunkCandidate
	parts   []string
	seps    []string
	tokens  int
	section string
	carry   string
}

func (p *chunkPacker) add(piece, sep string) {
	t := estimateTokens(piece)
	if len(p.parts) > 0 && p.tokens+t > p.opts.MaxTokens {
		p.flush()
	}
	if len(p.parts) == 0 && p.carry != "" {
		// The overlap seed counts against the hard cap: a near-cap piece must
		// not be pushed over it by the previous chunk's trailing sentences.
		// The +1 covers the joining separator.
		if estimateTokens(p.carry)+t+1 <= p.opts.HardTokenCap {
			p.parts = append(p.parts, p.carry)
			p.seps = append(p.seps, "")
			p.tokens = estimateTokens(p.carry)
		}
		p.carry = ""
	}
	sepToUse := sep
	if len(p.parts) == 0 {
		sepToUse = ""
	}
	p.parts = append(p.parts, piece)
	p.seps = append(p.seps, sepToUse)
	p.tokens += t
}

func (p *chunkPacker) flush() {
	if len(p.parts) == 0 {
		return
	}

	var b strings.Builder
	for i, part := range p.parts {
		if i > 0 {
			sep := p.seps[i]
			if sep == "" {
				sep = " "
			}
			b.WriteString(sep)
		}
		b.WriteString(part)
	}
	content := strings.TrimSpace(b.String())

	p.parts = p.parts[:0]
	p.seps = p.seps[:0]
	p.tokens = 0

	if content == "" {
		return
	}

	metadata := map[string]string{}
	if p.section != "" {
		metadata["section"] = p.section
	}
	p.chunks = append(p.chunks, domain.ChunkCandidate{
		Content:    content,
		ChunkIndex: len(p.chunks),
		Metadata:   metadata,
	})

	p.carry = lastSentences(content, p.opts.OverlapSentences)
}

// splitParagraphs splits on blank lines. If that yields a single block still
// over the token budget, it falls back to single-line-break boundaries.
func splitParagraphs(text string, maxTokens int) []string {
	blocks := trimNonEmpty(blankLineRe.Split(text, -1))
	if len(blocks) == 1 && estimateTokens(blocks[0]) > maxTokens {
		lines := trimNonEmpty(strings.Split(blocks[0], "\n"))
		if len(lines) > 1 {
			return lines
		}
	}
	return blocks
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// detectHeading recognizes a markdown #-style heading on the paragraph's
// first line, or a short all-caps single-line paragraph.
func detectHeading(para string) (string, bool) {
	firstLine := para
	rest := ""
	if idx := strings.IndexByte(para, '\n'); idx >= 0 {
		firstLine = strings.TrimSpace(para[:idx])
		rest = strings.TrimSpace(para[idx+1:])
	}

	if strings.HasPrefix(firstLine, "#") {
		heading := strings.TrimSpace(strings.TrimLeft(firstLine, "#"))
		if heading != "" {
			return heading, true
		}
		return "", false
	}

	// All-caps headings only count when the paragraph is a single short line.
	if rest != "" || len(firstLine) > 60 {
		return "", false
	}
	hasLetter := false
	for _, r := range firstLine {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return "", false
			}
		}
	}
	if !hasLetter {
		return "", false
	}
	return firstLine, true
}

// splitSentences breaks text at `.`, `!` or `?` followed by whitespace. Text
// with no such boundary comes back as a single sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && isASCIISpace(text[i+1]) {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isASCIISpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// lastSentences returns the last n sentences of content joined with spaces,
// used as the overlap seed for the following chunk.
func lastSentences(content string, n int) string {
	if n <= 0 {
		return ""
	}
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) <= n {
		// Seeding the whole chunk again would duplicate it wholesale.
		if len(sentences) == 1 {
			return ""
		}
		n = len(sentences) - 1
	}
	return strings.Join(sentences[len(sentences)-n:], " ")
}

func forceSplitWords(text string, wordsPerPiece int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	pieces := make([]string, 0, len(words)/wordsPerPiece+1)
	for start := 0; start < len(words); start += wordsPerPiece {
		end := start + wordsPerPiece
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, strings.Join(words[start:end], " "))
	}
	return pieces
}
