// Package merge implements the three-way merge of spec §4.8: a
// key-wise header merge plus a block-wise body merge split on
// top-level Markdown headings.
package merge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/castsync/cast/normalize"
)

// ReservedPrefix marks header keys synchronized across vaults — the
// source side is authoritative for these; every other key is local to
// the destination (spec §4.8, §6 "Header keys reserved by the engine").
const ReservedPrefix = "cast-"

func reserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// MergeHeader combines source's reserved keys with destination's local
// keys. The identifier is forced first; destination's key order is
// otherwise preserved, with source-only reserved keys appended.
func MergeHeader(source, dest normalize.Header) normalize.Header {
	result := make(normalize.Header, 0, len(dest)+len(source))
	seen := make(map[string]bool, len(dest))

	for _, kv := range dest {
		if reserved(kv.Key) {
			v, ok := source.Get(kv.Key)
			if !ok {
				continue // source dropped this reserved key
			}
			result = append(result, normalize.KV{Key: kv.Key, Value: v})
		} else {
			result = append(result, kv)
		}
		seen[kv.Key] = true
	}
	for _, kv := range source {
		if reserved(kv.Key) && !seen[kv.Key] {
			result = append(result, kv)
			seen[kv.Key] = true
		}
	}
	return result.EnsureFirst(normalize.IdentifierKey)
}

// Hunk is one unresolved three-way body conflict: a block both sides
// changed differently from the common base.
type Hunk struct {
	Heading   string
	ByteStart int
	ByteEnd   int
	Source    []byte
	Dest      []byte
}

type block struct {
	heading string
	content string
}

// isTopHeading reports whether line opens a top-level ("# ") Markdown
// heading; "##"-or-deeper headings are sub-blocks and stay inside
// whichever top-level block contains them.
func isTopHeading(line string) bool {
	return strings.HasPrefix(line, "# ")
}

func splitBlocks(body []byte) []block {
	lines := strings.Split(string(body), "\n")
	var blocks []block

	i := 0
	var preamble []string
	for i < len(lines) && !isTopHeading(lines[i]) {
		preamble = append(preamble, lines[i])
		i++
	}
	if joined := strings.Join(preamble, "\n"); strings.TrimSpace(joined) != "" {
		blocks = append(blocks, block{heading: "", content: joined})
	}

	for i < len(lines) {
		heading := lines[i]
		i++
		contentLines := []string{heading}
		for i < len(lines) && !isTopHeading(lines[i]) {
			contentLines = append(contentLines, lines[i])
			i++
		}
		blocks = append(blocks, block{heading: heading, content: strings.Join(contentLines, "\n")})
	}
	return blocks
}

func blockIndex(blocks []block) (map[string]block, []string) {
	m := make(map[string]block, len(blocks))
	var order []string
	for _, b := range blocks {
		if _, exists := m[b.heading]; !exists {
			order = append(order, b.heading)
		}
		m[b.heading] = b
	}
	return m, order
}

// prefixContainment reports whether, ignoring trailing whitespace, one
// string is a strict prefix of the other — the heuristic spec §4.8
// uses to auto-resolve append-mostly edits without a hunk.
func prefixContainment(a, b string) (longer string, ok bool) {
	ta, tb := strings.TrimRight(a, " \t\n"), strings.TrimRight(b, " \t\n")
	if ta == tb {
		return a, true
	}
	if strings.HasPrefix(tb, ta) {
		return b, true
	}
	if strings.HasPrefix(ta, tb) {
		return a, true
	}
	return "", false
}

func formatConflict(src, dst, sourceVaultID, destVaultID string) string {
	return fmt.Sprintf("<<<<<<< %s\n%s\n=======\n%s\n>>>>>>> %s", sourceVaultID, src, dst, destVaultID)
}

// resolve applies the three-way rule to one block's (base, source,
// dest) content triple, returning the chosen text and, if the block is
// a genuine conflict, the Hunk describing it.
func resolve(heading, base, src, dst, sourceVaultID, destVaultID string) (string, *Hunk) {
	switch {
	case src == dst:
		return src, nil
	case src == base:
		return dst, nil
	case dst == base:
		return src, nil
	}
	if longer, ok := prefixContainment(src, dst); ok {
		return longer, nil
	}
	return formatConflict(src, dst, sourceVaultID, destVaultID), &Hunk{
		Heading: heading,
		Source:  []byte(src),
		Dest:    []byte(dst),
	}
}

// MergeBody three-way merges base, source, and dest body content,
// block by block, returning the merged bytes and any unresolved hunks.
// Hunk byte ranges are offsets into the returned merged bytes.
func MergeBody(base, source, dest []byte, sourceVaultID, destVaultID string) ([]byte, []Hunk) {
	baseBlocks, baseOrder := blockIndex(splitBlocks(base))
	srcBlocks, srcOrder := blockIndex(splitBlocks(source))
	dstBlocks, dstOrder := blockIndex(splitBlocks(dest))

	var buf bytes.Buffer
	var hunks []Hunk

	emit := func(heading, content string, hunk *Hunk) {
		if content == "" {
			return
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		start := buf.Len()
		buf.WriteString(content)
		if hunk != nil {
			hunk.ByteStart = start
			hunk.ByteEnd = buf.Len()
			hunks = append(hunks, *hunk)
		}
	}

	seen := make(map[string]bool, len(baseOrder))
	for _, h := range baseOrder {
		seen[h] = true
		b := baseBlocks[h].content
		s, d := srcBlocks[h].content, dstBlocks[h].content
		content, hunk := resolve(h, b, s, d, sourceVaultID, destVaultID)
		emit(h, content, hunk)
	}

	var newHeadings []string
	newSeen := make(map[string]bool)
	for _, h := range srcOrder {
		if !seen[h] && !newSeen[h] {
			newHeadings = append(newHeadings, h)
			newSeen[h] = true
		}
	}
	for _, h := range dstOrder {
		if !seen[h] && !newSeen[h] {
			newHeadings = append(newHeadings, h)
			newSeen[h] = true
		}
	}

	for _, h := range newHeadings {
		s, hasS := srcBlocks[h]
		d, hasD := dstBlocks[h]
		switch {
		case hasS && hasD && s.content == d.content:
			emit(h, s.content, nil)
		case hasS && hasD:
			content, hunk := resolve(h, "", s.content, d.content, sourceVaultID, destVaultID)
			emit(h, content, hunk)
		case hasS:
			emit(h, s.content, nil)
		case hasD:
			emit(h, d.content, nil)
		}
	}

	if buf.Len() == 0 {
		return []byte("\n"), hunks
	}
	buf.WriteString("\n")
	return buf.Bytes(), hunks
}
