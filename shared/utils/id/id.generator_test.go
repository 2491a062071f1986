package id

import (
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	got := Generate("txn")
	require.True(t, strings.HasPrefix(got, "txn_"))

	_, err := ulid.ParseStrict(strings.TrimPrefix(got, "txn_"))
	assert.NoError(t, err)
}

func TestGenerate_SortableAndUnique(t *testing.T) {
	ids := make([]string, 1000)
	seen := make(map[string]bool, len(ids))
	for i := range ids {
		ids[i] = Generate("le")
		assert.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestGenerateReference(t *testing.T) {
	re := regexp.MustCompile(`^STL-\d{4}[0-9A-Z]{4}$`)
	for i := 0; i < 20; i++ {
		ref := GenerateReference("STL")
		assert.Regexp(t, re, ref)
	}
}
