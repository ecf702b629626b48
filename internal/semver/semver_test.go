package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareNumericNotLexicographic(t *testing.T) {
	assert.Equal(t, 1, Compare("1.10.0", "1.9.0"))
	assert.Equal(t, -1, Compare("1.9.0", "1.10.0"))
}

func TestCompareMissingTrailingComponents(t *testing.T) {
	assert.Equal(t, 0, Compare("1.0", "1.0.0"))
	assert.Equal(t, 0, Compare("2", "2.0.0.0"))
	assert.Equal(t, -1, Compare("1.0", "1.0.1"))
}

func TestCompareStableOutranksPrerelease(t *testing.T) {
	assert.Equal(t, 1, Compare("1.0.0", "1.0.0-alpha"))
	assert.Equal(t, -1, Compare("1.0.0-rc.1", "1.0.0"))
}

func TestComparePrereleaseOrdinal(t *testing.T) {
	assert.Equal(t, 1, Compare("1.0.0-beta", "1.0.0-alpha"))
	assert.Equal(t, 0, Compare("1.0.0-alpha", "1.0.0-alpha"))
}

func TestCompareIsAntisymmetric(t *testing.T) {
	versions := []string{
		"1.0.0", "1.0", "1.0.0-alpha", "1.0.0-beta", "1.10.0", "1.9.0",
		"0.0.1", "2.0.0-rc1", "garbage", "2.x",
	}

	for _, a := range versions {
		for _, b := range versions {
			assert.Equal(t, -Compare(b, a), Compare(a, b), "compare(%q,%q)", a, b)
		}
	}
}

func TestCompareLargeComponents(t *testing.T) {
	assert.Equal(t, 1, Compare("1.18446744073709551616.0", "1.2.0"))
	assert.Equal(t, -1, Compare("1.09", "1.10"))
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "1..0", "1.x.0", "a.b.c", ".1"} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestParseKeepsPrereleaseIntact(t *testing.T) {
	v, err := Parse("1.2.3-beta-2")
	require.NoError(t, err)
	assert.Equal(t, "beta-2", v.Pre)
	assert.Equal(t, []string{"1", "2", "3"}, v.Release)
}

func TestSortDoesNotMutateInput(t *testing.T) {
	input := []string{"1.0.0", "2.0.0", "0.5.0"}
	original := []string{"1.0.0", "2.0.0", "0.5.0"}

	Sort(input, Descending)
	assert.Equal(t, original, input)
}

func TestSortDescendingIsDefaultOrder(t *testing.T) {
	input := []string{"1.0.0-alpha", "1.10.0", "1.0.0", "1.9.0"}

	assert.Equal(t, []string{"1.10.0", "1.9.0", "1.0.0", "1.0.0-alpha"}, Sort(input, Descending))
}

func TestSortAscendingIsReverseOfDescending(t *testing.T) {
	input := []string{"3.1.0", "1.0.0-beta", "1.0.0", "2.0.0", "0.1.0"}

	asc := Sort(input, Ascending)
	desc := Sort(input, Descending)

	require.Equal(t, len(asc), len(desc))
	for i := range asc {
		assert.Equal(t, asc[i], desc[len(desc)-1-i])
	}
}

func TestLatest(t *testing.T) {
	latest, ok := Latest([]string{"1.0.0", "1.10.0", "1.10.0-beta", "1.2.0"})
	require.True(t, ok)
	assert.Equal(t, "1.10.0", latest)

	_, ok = Latest(nil)
	assert.False(t, ok)
}
