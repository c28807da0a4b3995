package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestParseSplitsHeaderAndBody(t *testing.T) {
	doc := mustParse(t, "---\ncast-id: abc\ntags:\n  - x\n---\nhello\n")
	require.True(t, doc.HasHeader)
	id, ok := doc.Header.Get("cast-id")
	require.True(t, ok)
	require.Equal(t, "abc", id.Scalar)
	require.Equal(t, "hello\n", string(doc.Body))
}

func TestParseBodyOnly(t *testing.T) {
	doc := mustParse(t, "just a note, no header\n")
	require.False(t, doc.HasHeader)
	require.Equal(t, "just a note, no header\n", string(doc.Body))
}

func TestParseRejectsBadUTF8(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
}

func TestParseRejectsUnterminatedHeader(t *testing.T) {
	_, err := Parse([]byte("---\ncast-id: abc\nhello\n"))
	require.Error(t, err)
}

func TestCRLFNormalizedToLF(t *testing.T) {
	doc := mustParse(t, "---\r\ncast-id: abc\r\n---\r\nhello\r\nworld\r\n")
	require.Equal(t, "hello\nworld\n", string(doc.Body))
}

func TestCanonicalizeIdempotent(t *testing.T) {
	doc := mustParse(t, "---\ncast-id: abc\ntags:\n  - x\n---\nhello   \nworld\n\n\n")
	once := Canonicalize(doc, nil)

	reparsed, err := Parse(Serialize(once.Header, once.Body))
	require.NoError(t, err)
	twice := Canonicalize(reparsed, nil)

	require.Equal(t, once.Digest, twice.Digest)
	require.Equal(t, once.Body, twice.Body)
}

func TestDigestDeterministic(t *testing.T) {
	a := Canonicalize(mustParse(t, "---\ncast-id: abc\nb: 2\na: 1\n---\nhello\n"), nil)
	b := Canonicalize(mustParse(t, "---\ncast-id: abc\na: 1\nb: 2\n---\nhello\n"), nil)
	require.Equal(t, a.Digest, b.Digest, "key order must not affect the digest")
}

func TestEphemeralKeysExcludedFromDigest(t *testing.T) {
	withMtime := Canonicalize(mustParse(t, "---\ncast-id: abc\nmtime: 111\n---\nhello\n"), []string{"mtime"})
	withoutMtime := Canonicalize(mustParse(t, "---\ncast-id: abc\nmtime: 222\n---\nhello\n"), []string{"mtime"})
	require.Equal(t, withMtime.Digest, withoutMtime.Digest)
}

func TestBodyDigestIgnoresHeaderChanges(t *testing.T) {
	a := Canonicalize(mustParse(t, "---\ncast-id: abc\ntags:\n  - x\n---\nhello\n"), nil)
	b := Canonicalize(mustParse(t, "---\ncast-id: abc\ntags:\n  - y\n  - z\n---\nhello\n"), nil)
	require.Equal(t, a.Digest.Body, b.Digest.Body)
	require.NotEqual(t, a.Digest.Full, b.Digest.Full)
}

func TestTrailingWhitespaceStripped(t *testing.T) {
	doc := mustParse(t, "hello   \t\nworld\n")
	file := Canonicalize(doc, nil)
	require.Equal(t, "hello\nworld\n", string(file.Body))
}

func TestSingleTrailingNewlineGuaranteed(t *testing.T) {
	doc := mustParse(t, "hello")
	file := Canonicalize(doc, nil)
	require.Equal(t, "hello\n", string(file.Body))
}
