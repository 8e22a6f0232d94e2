// Package chunk derives line-based and symbol-based chunks from file content
// and extracted symbols.
package chunk

import (
	"sort"
	"strings"

	"github.com/AlanVerbner/kit/pkg/types"
)

// DefaultMaxLines is the default window size for line-based chunking.
const DefaultMaxLines = 50

// ByLines partitions content into contiguous, non-overlapping windows of at
// most maxLines lines. The last window may be shorter. Line numbers are
// 0-indexed and inclusive.
func ByLines(path, content string, maxLines int) []types.Chunk {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var chunks []types.Chunk
	for start := 0; start < len(lines); start += maxLines {
		end := start + maxLines - 1
		if end >= len(lines) {
			end = len(lines) - 1
		}
		chunks = append(chunks, types.Chunk{
			FilePath:  path,
			Content:   strings.Join(lines[start:end+1], "\n"),
			Type:      types.ChunkTypeLines,
			StartLine: start,
			EndLine:   end,
		})
	}
	return chunks
}

// BySymbols produces one chunk per top-level symbol, with line-based chunks
// covering every region no symbol claims. Symbols nested inside another
// symbol's span ride along with their parent instead of chunking separately,
// so a class body is not duplicated once per method. The union of all chunk
// spans is the file's full line range, gap-free and overlap-free.
func BySymbols(path, content string, symbols []types.Symbol, maxLines int) []types.Chunk {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	spans := topLevelSpans(symbols, len(lines))

	var chunks []types.Chunk
	cur := 0
	for _, s := range spans {
		if s.start > cur {
			chunks = append(chunks, fillLines(path, lines, cur, s.start-1, maxLines)...)
		}
		chunks = append(chunks, types.Chunk{
			FilePath:  path,
			Content:   strings.Join(lines[s.start:s.end+1], "\n"),
			Type:      types.ChunkTypeSymbol,
			Name:      s.name,
			StartLine: s.start,
			EndLine:   s.end,
		})
		cur = s.end + 1
	}
	if cur < len(lines) {
		chunks = append(chunks, fillLines(path, lines, cur, len(lines)-1, maxLines)...)
	}
	return chunks
}

type span struct {
	start, end int
	name       string
}

// topLevelSpans selects a non-overlapping set of symbol spans in ascending
// order. Wider spans win over spans they contain; spans that partially
// overlap an already selected one are dropped to keep coverage disjoint.
func topLevelSpans(symbols []types.Symbol, lineCount int) []span {
	candidates := make([]span, 0, len(symbols))
	for _, s := range symbols {
		if s.StartLine < 0 || s.EndLine < s.StartLine || s.StartLine >= lineCount {
			continue
		}
		end := s.EndLine
		if end >= lineCount {
			end = lineCount - 1
		}
		candidates = append(candidates, span{start: s.StartLine, end: end, name: s.Name})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end > candidates[j].end
	})

	var selected []span
	next := 0
	for _, c := range candidates {
		if c.start < next {
			continue
		}
		selected = append(selected, c)
		next = c.end + 1
	}
	return selected
}

func fillLines(path string, lines []string, start, end, maxLines int) []types.Chunk {
	var chunks []types.Chunk
	for s := start; s <= end; s += maxLines {
		e := s + maxLines - 1
		if e > end {
			e = end
		}
		chunks = append(chunks, types.Chunk{
			FilePath:  path,
			Content:   strings.Join(lines[s:e+1], "\n"),
			Type:      types.ChunkTypeLines,
			StartLine: s,
			EndLine:   e,
		})
	}
	return chunks
}

// splitLines splits content into lines without counting a trailing newline
// as an extra empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
