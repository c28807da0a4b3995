package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/normalize"
)

func scalar(s string) normalize.Value {
	return normalize.Value{Kind: normalize.KindScalar, Scalar: s}
}

func TestGenerateProducesValidV4(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	require.True(t, Valid(id))
	require.Equal(t, uuid.Version(4), uuid.MustParse(id).Version())
}

func TestInjectIfEligibleSkipsUntriggered(t *testing.T) {
	h := normalize.Header{{Key: "title", Value: scalar("x")}}
	out, injected, err := InjectIfEligible(h)
	require.NoError(t, err)
	require.False(t, injected)
	require.Equal(t, h, out)
}

func TestInjectIfEligibleAssignsFirst(t *testing.T) {
	h := normalize.Header{{Key: "cast-vaults", Value: scalar("A (sync)")}}
	out, injected, err := InjectIfEligible(h)
	require.NoError(t, err)
	require.True(t, injected)
	require.Equal(t, Key, out[0].Key)
	id, ok := Of(out)
	require.True(t, ok)
	require.True(t, Valid(id))
}

func TestInjectIfEligibleNoopWhenIDPresent(t *testing.T) {
	h := normalize.Header{{Key: Key, Value: scalar("11111111-1111-4111-8111-111111111111")}, {Key: "cast-vaults", Value: scalar("A (sync)")}}
	out, injected, err := InjectIfEligible(h)
	require.NoError(t, err)
	require.False(t, injected)
	require.Equal(t, h, out)
}

func TestEnsureIDFirstReorders(t *testing.T) {
	h := normalize.Header{{Key: "title", Value: scalar("x")}, {Key: Key, Value: scalar("id-1")}}
	out := EnsureIDFirst(h)
	require.Equal(t, Key, out[0].Key)
	require.Equal(t, "title", out[1].Key)
}

func TestFindDuplicates(t *testing.T) {
	entries := []Located{
		{ID: "a", Path: "one.md"},
		{ID: "a", Path: "two.md"},
		{ID: "b", Path: "three.md"},
	}
	dups := FindDuplicates(entries)
	require.Len(t, dups, 1)
	require.ElementsMatch(t, []string{"one.md", "two.md"}, dups["a"])
}
