package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

// AssembledContext is the generation prompt plus the deduplicated source list
// surfaced back to the caller before streaming begins.
type AssembledContext struct {
	Prompt  string
	Sources []domain.ContextSource
}

const (
	assemblerPreamble = "You are an assistant answering questions about an account's documents and activity."

	fallbackPrompt = assemblerPreamble + `

No relevant content was found for this question. Tell the user that nothing
relevant was found and suggest they rephrase the question or narrow it to a
specific document, meeting or task.`
)

// AssembleContext merges structured and/or retrieved results into a system
// prompt, selecting one of four templates depending on what is present.
func AssembleContext(structured []FetchResult, rag []*SearchResult) AssembledContext {
	sources := dedupeSources(rag)

	switch {
	case len(structured) > 0 && len(rag) > 0:
		var b strings.Builder
		b.WriteString(assemblerPreamble)
		b.WriteString("\n\nStructured data:\n\n")
		writeStructuredBlocks(&b, structured)
		b.WriteString("\nRetrieved content:\n\n")
		writeExcerpts(&b, rag)
		b.WriteString("\nUse BOTH the structured data and the retrieved content to answer. ")
		b.WriteString("Name the source document when you reference retrieved content.")
		return AssembledContext{Prompt: b.String(), Sources: sources}

	case len(structured) > 0:
		var b strings.Builder
		b.WriteString(assemblerPreamble)
		b.WriteString("\n\nStructured data:\n\n")
		writeStructuredBlocks(&b, structured)
		b.WriteString("\nAnswer from this structured data. Surface patterns and statistics where relevant.")
		return AssembledContext{Prompt: b.String(), Sources: sources}

	case len(rag) > 0:
		var b strings.Builder
		b.WriteString(assemblerPreamble)
		b.WriteString("\n\nContext:\n\n")
		writeExcerpts(&b, rag)
		b.WriteString("\nAnswer using ONLY the context above. ")
		b.WriteString("Name the source document when you reference it. ")
		b.WriteString("If the context does not contain the answer, say so.")
		return AssembledContext{Prompt: b.String(), Sources: sources}

	default:
		return AssembledContext{Prompt: fallbackPrompt, Sources: sources}
	}
}

func writeStructuredBlocks(b *strings.Builder, structured []FetchResult) {
	for _, result := range structured {
		b.WriteString(result.Text)
		b.WriteString("\n")
	}
}

func writeExcerpts(b *strings.Builder, rag []*SearchResult) {
	for i, r := range rag {
		fmt.Fprintf(b, "[%d] %s (%s):\n%s\n\n", i+1, r.Title, r.SourceType, r.Content)
	}
}

// dedupeSources keeps the highest-similarity chunk per source document,
// ordered by similarity descending. The full prompt may still use several
// chunks of the same source; this list is what the caller sees.
func dedupeSources(rag []*SearchResult) []domain.ContextSource {
	best := make(map[string]*SearchResult, len(rag))
	for _, r := range rag {
		if existing, ok := best[r.SourceID]; !ok || r.Similarity > existing.Similarity {
			best[r.SourceID] = r
		}
	}

	sources := make([]domain.ContextSource, 0, len(best))
	for _, r := range best {
		sources = append(sources, domain.ContextSource{
			SourceID:   r.SourceID,
			SourceType: r.SourceType,
			Title:      r.Title,
			Similarity: r.Similarity,
		})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Similarity != sources[j].Similarity {
			return sources[i].Similarity > sources[j].Similarity
		}
		return sources[i].SourceID < sources[j].SourceID
	})
	return sources
}
