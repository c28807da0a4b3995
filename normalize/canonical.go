package normalize

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// IdentifierKey is the header key the identity layer injects and that
// digesting always sorts first. It is defined here rather than in
// identity so normalize has no import-cycle on identity; identity.Key
// re-exports it.
const IdentifierKey = "cast-id"

// Digests holds the two SHA-256 digests spec §4.1 requires: over the
// full normalized content, and over the normalized body alone.
type Digests struct {
	Full string
	Body string
}

// File is the fully canonicalized form of a vault document: the header
// and body as they will be digested, plus the digests themselves.
type File struct {
	Header Header
	Body   []byte
	Digest Digests
}

// Canonicalize applies spec §4.1 steps 2-6 to a parsed Document:
// trailing-whitespace stripping, single-trailing-newline guarantee, and
// (for digest purposes only) ephemeral-key stripping plus deterministic
// key reordering. ephemeralKeys lists header keys excluded from both
// digests, per spec's "Ephemeral keys" definition.
func Canonicalize(doc *Document, ephemeralKeys []string) *File {
	body := stripTrailingWhitespace(doc.Body)

	digestHeader := doc.Header.Without(ephemeralKeys...).SortedForDigest(IdentifierKey)

	bodyDigest := sha256Hex(body)

	var fullBuf bytes.Buffer
	if len(digestHeader) > 0 {
		fullBuf.WriteString(Delimiter)
		fullBuf.WriteByte('\n')
		fullBuf.Write(headerToYAML(digestHeader))
		fullBuf.WriteString(Delimiter)
		fullBuf.WriteByte('\n')
	}
	fullBuf.Write(body)
	fullDigest := sha256Hex(fullBuf.Bytes())

	return &File{
		Header: doc.Header,
		Body:   body,
		Digest: Digests{Full: fullDigest, Body: bodyDigest},
	}
}

// stripTrailingWhitespace trims trailing whitespace from every line and
// guarantees the result ends with exactly one trailing newline, per
// spec §4.1 step 5.
func stripTrailingWhitespace(body []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out bytes.Buffer
	first := true
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), " \t")
		if !first {
			out.WriteByte('\n')
		}
		out.Write(line)
		first = false
	}
	trimmed := bytes.TrimRight(out.Bytes(), "\n")
	if len(trimmed) == 0 {
		return []byte("\n")
	}
	return append(trimmed, '\n')
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
