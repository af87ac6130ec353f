package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBacklink_NoExistingSourceLine_Prepends(t *testing.T) {
	got := NormalizeBacklink("the actual body", "https://b.example.com/-/issues/7")
	require.Equal(t, "Source: https://b.example.com/-/issues/7\n\nthe actual body", got)
}

func TestNormalizeBacklink_EmptyDescription_IsJustTheBacklink(t *testing.T) {
	got := NormalizeBacklink("", "https://b.example.com/-/issues/7")
	require.Equal(t, "Source: https://b.example.com/-/issues/7", got)
}

func TestNormalizeBacklink_ReplacesStaleSourceLine(t *testing.T) {
	stale := "Source: https://old.example.com/-/issues/1\n\nthe actual body"
	got := NormalizeBacklink(stale, "https://b.example.com/-/issues/7")
	require.Equal(t, "Source: https://b.example.com/-/issues/7\n\nthe actual body", got)
}

func TestNormalizeBacklink_SourceKeywordIsCaseInsensitive(t *testing.T) {
	stale := "source: https://old.example.com/-/issues/1\n\nthe actual body"
	got := NormalizeBacklink(stale, "https://b.example.com/-/issues/7")
	require.Equal(t, "Source: https://b.example.com/-/issues/7\n\nthe actual body", got)
}

func TestNormalizeBacklink_IsIdempotent(t *testing.T) {
	url := "https://b.example.com/-/issues/7"
	once := NormalizeBacklink("the actual body", url)
	twice := NormalizeBacklink(once, url)
	thrice := NormalizeBacklink(twice, url)

	require.Equal(t, once, twice)
	require.Equal(t, once, thrice)
}

func TestNormalizeBacklink_IdempotentAcrossURLChange(t *testing.T) {
	first := NormalizeBacklink("the actual body", "https://b.example.com/-/issues/7")
	second := NormalizeBacklink(first, "https://b.example.com/-/issues/8")

	require.Equal(t, "Source: https://b.example.com/-/issues/8\n\nthe actual body", second)
}
