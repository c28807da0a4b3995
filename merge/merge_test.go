package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/normalize"
)

func scalar(s string) normalize.Value { return normalize.Value{Kind: normalize.KindScalar, Scalar: s} }

func TestMergeHeaderTakesReservedFromSourceAndLocalFromDest(t *testing.T) {
	source := normalize.Header{
		{Key: "cast-id", Value: scalar("U")},
		{Key: "cast-vaults", Value: scalar("A,B")},
	}
	dest := normalize.Header{
		{Key: "cast-id", Value: scalar("U")},
		{Key: "tags", Value: scalar("x")},
		{Key: "cast-vaults", Value: scalar("stale")},
	}

	merged := MergeHeader(source, dest)
	require.Equal(t, "cast-id", merged[0].Key)
	v, ok := merged.Get("cast-vaults")
	require.True(t, ok)
	require.Equal(t, "A,B", v.Scalar)
	v, ok = merged.Get("tags")
	require.True(t, ok)
	require.Equal(t, "x", v.Scalar)
}

func TestMergeHeaderAppendsSourceOnlyReservedKeys(t *testing.T) {
	source := normalize.Header{
		{Key: "cast-id", Value: scalar("U")},
		{Key: "cast-type", Value: scalar("note")},
	}
	dest := normalize.Header{
		{Key: "cast-id", Value: scalar("U")},
	}

	merged := MergeHeader(source, dest)
	v, ok := merged.Get("cast-type")
	require.True(t, ok)
	require.Equal(t, "note", v.Scalar)
}

func TestMergeBodyUnchangedBlockTakesAgreement(t *testing.T) {
	base := []byte("# Section\naaa")
	merged, hunks := MergeBody(base, base, base, "A", "B")
	require.Empty(t, hunks)
	require.Contains(t, string(merged), "aaa")
}

func TestMergeBodyOneSidedChangeIsTaken(t *testing.T) {
	base := []byte("hello")
	src := []byte("hello world")
	dst := []byte("hello")

	merged, hunks := MergeBody(base, src, dst, "A", "B")
	require.Empty(t, hunks)
	require.Equal(t, "hello world\n", string(merged))
}

func TestMergeBodyBothChangedDifferentlyIsHunk(t *testing.T) {
	base := []byte("hello\n\n# Section\nbase")
	src := []byte("hello\n\n# Section\naaa")
	dst := []byte("hello\n\n# Section\nbbb")

	merged, hunks := MergeBody(base, src, dst, "A", "B")
	require.Len(t, hunks, 1)
	require.Contains(t, string(merged), "<<<<<<< A")
	require.Contains(t, string(merged), "aaa")
	require.Contains(t, string(merged), "=======")
	require.Contains(t, string(merged), "bbb")
	require.Contains(t, string(merged), ">>>>>>> B")
}

func TestMergeBodyPrefixContainmentTakesLonger(t *testing.T) {
	base := []byte("hello")
	src := []byte("hello\n")
	dst := []byte("hello\nworld")

	merged, hunks := MergeBody(base, src, dst, "A", "B")
	require.Empty(t, hunks)
	require.Equal(t, "hello\nworld\n", string(merged))
}

func TestMergeBodyAddedInBothIdenticalCollapses(t *testing.T) {
	base := []byte("base")
	src := []byte("base\n\n# New\nsame")
	dst := []byte("base\n\n# New\nsame")

	merged, hunks := MergeBody(base, src, dst, "A", "B")
	require.Empty(t, hunks)
	require.Equal(t, 1, countOccurrences(string(merged), "# New"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
