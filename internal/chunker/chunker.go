package chunker

import (
	"strings"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// DefaultSeparators is the hierarchy tried from coarsest to finest: paragraph
// breaks, line breaks, sentence-ending punctuation, clause breaks, words, and
// finally individual characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter divides text into overlapping chunks using hierarchical separators.
// It is pure and deterministic: identical input always yields identical chunks.
type Splitter struct {
	ChunkSize     int
	ChunkOverlap  int
	Separators    []string
	KeepSeparator bool
}

// New returns a Splitter with the given size and overlap and the default
// separator hierarchy.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Splitter{
		ChunkSize:     chunkSize,
		ChunkOverlap:  chunkOverlap,
		Separators:    DefaultSeparators,
		KeepSeparator: true,
	}
}

// span is a half-open [start, end) window into the source text. Chunk text is
// always the exact substring, so offsets stay truthful and adjacent chunks
// cover the source without gaps.
type span struct {
	start int
	end   int
}

func (sp span) len() int { return sp.end - sp.start }

// Split divides text into chunks, attaching documentMetadata plus per-chunk
// bookkeeping to each. Empty or whitespace-only input yields no chunks; input
// shorter than the chunk size yields exactly one.
func (s *Splitter) Split(text string, documentMetadata map[string]any) []types.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := s.splitSpans(text, span{0, len(text)}, s.Separators)

	// Whitespace-only fragments carry no signal for retrieval.
	kept := spans[:0]
	for _, sp := range spans {
		if strings.TrimSpace(text[sp.start:sp.end]) != "" {
			kept = append(kept, sp)
		}
	}

	chunks := make([]types.Chunk, 0, len(kept))
	for i, sp := range kept {
		chunkText := text[sp.start:sp.end]
		metadata := make(map[string]any, len(documentMetadata)+3)
		for k, v := range documentMetadata {
			metadata[k] = v
		}
		metadata["chunk_index"] = i
		metadata["total_chunks"] = len(kept)
		metadata["chunk_size"] = len(chunkText)

		chunks = append(chunks, types.Chunk{
			Text:      chunkText,
			Index:     i,
			StartChar: sp.start,
			EndChar:   sp.end,
			Metadata:  metadata,
		})
	}

	return chunks
}

// splitSpans recursively splits the window using the first separator that
// occurs in it, then greedily recombines the pieces into chunk-sized groups.
func (s *Splitter) splitSpans(text string, window span, separators []string) []span {
	if window.len() <= s.ChunkSize {
		return []span{window}
	}

	separator := ""
	remaining := []string{}
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text[window.start:window.end], sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	if separator == "" {
		// No separator left: fixed-width slicing, still honoring overlap.
		return s.sliceByWidth(window)
	}

	pieces := splitKeepingSeparator(text, window, separator)
	return s.mergePieces(text, pieces, remaining)
}

// splitKeepingSeparator cuts the window at each occurrence of sep, keeping the
// separator attached to the end of the preceding piece so no characters are lost.
func splitKeepingSeparator(text string, window span, sep string) []span {
	var pieces []span
	start := window.start
	for start < window.end {
		idx := strings.Index(text[start:window.end], sep)
		if idx < 0 {
			pieces = append(pieces, span{start, window.end})
			break
		}
		end := start + idx + len(sep)
		pieces = append(pieces, span{start, end})
		start = end
	}
	return pieces
}

// mergePieces recombines contiguous pieces into groups no longer than
// ChunkSize, carrying up to ChunkOverlap characters of trailing pieces into
// the next group. Pieces that alone exceed ChunkSize are split further with
// the remaining separators.
func (s *Splitter) mergePieces(text string, pieces []span, remaining []string) []span {
	var out []span
	var current []span
	total := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, span{current[0].start, current[len(current)-1].end})
	}

	for _, piece := range pieces {
		if piece.len() > s.ChunkSize {
			flush()
			current = current[:0]
			total = 0
			out = append(out, s.splitSpans(text, piece, remaining)...)
			continue
		}

		if total+piece.len() > s.ChunkSize && len(current) > 0 {
			flush()
			// Drop leading pieces until what remains fits as overlap context.
			for total > s.ChunkOverlap || (total+piece.len() > s.ChunkSize && total > 0) {
				total -= current[0].len()
				current = current[1:]
			}
		}

		current = append(current, piece)
		total += piece.len()
	}
	flush()

	return out
}

// sliceByWidth is the atomic fallback: fixed ChunkSize windows advancing by
// ChunkSize-ChunkOverlap so the algorithm always terminates.
func (s *Splitter) sliceByWidth(window span) []span {
	step := s.ChunkSize - s.ChunkOverlap
	if step < 1 {
		step = 1
	}

	var out []span
	for start := window.start; start < window.end; start += step {
		end := start + s.ChunkSize
		if end >= window.end {
			out = append(out, span{start, window.end})
			break
		}
		out = append(out, span{start, end})
	}
	return out
}
