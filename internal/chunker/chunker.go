// Package chunker splits long documents into bounded pieces that never cut
// through a fenced code block when a safer boundary exists.
package chunker

import (
	"strings"
	"unicode/utf8"

	"ideaforge/internal/domain"
)

const (
	fence     = "```"
	paragraph = "\n\n"
)

// Split breaks text into contiguous chunks of at most maxSize bytes.
// Concatenating the result reproduces text exactly. A non-positive maxSize
// disables splitting.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 || len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxSize {
		cut := cutPoint(text[:maxSize], text, maxSize)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// cutPoint picks where to end the next chunk within window. An odd number of
// fence markers means the window ends inside a code block, so the cut goes
// just before the last marker. Otherwise the last paragraph break outside any
// block wins, then the end of the last closed block. A window opening inside
// a block it cannot close has no safe cut and takes any paragraph break.
// A cut at zero would not advance, so it falls through to the next option.
func cutPoint(window, text string, maxSize int) int {
	if strings.Count(window, fence)%2 != 0 {
		if i := strings.LastIndex(window, fence); i > 0 {
			return i
		}
	}
	if i := lastOpenParagraph(window); i > 0 {
		return i
	}
	if i := strings.LastIndex(window, fence); i >= 0 && strings.Count(window, fence)%2 == 0 {
		return i + len(fence)
	}
	if i := strings.LastIndex(window, paragraph); i > 0 {
		return i
	}
	return hardCut(text, maxSize)
}

// lastOpenParagraph returns the last paragraph break not enclosed by a fenced
// block, or -1.
func lastOpenParagraph(window string) int {
	end := len(window)
	for {
		i := strings.LastIndex(window[:end], paragraph)
		if i <= 0 {
			return -1
		}
		if strings.Count(window[:i], fence)%2 == 0 {
			return i
		}
		end = i
	}
}

// hardCut returns maxSize moved back to the nearest rune boundary.
func hardCut(text string, maxSize int) int {
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return maxSize
	}
	return cut
}

// Chunks splits text and attaches positional metadata to each piece.
func Chunks(text string, maxSize int) []domain.TextChunk {
	parts := Split(text, maxSize)
	out := make([]domain.TextChunk, len(parts))
	for i, p := range parts {
		out[i] = domain.TextChunk{Index: i, Total: len(parts), Text: p}
	}
	return out
}
