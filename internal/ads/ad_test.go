package ads

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"a", "a", "b"}))
	assert.Equal(t, []string{"sale", "promo"}, NormalizeTags([]string{" sale ", "", "promo", "sale"}))
	assert.Equal(t, []string{}, NormalizeTags(nil))
}

func TestParseTypeFilter(t *testing.T) {
	for in, want := range map[string]TypeFilter{"": TypeAll, "ALL": TypeAll, "image": TypeImage, " Video ": TypeVideo} {
		got, err := ParseTypeFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTypeFilter("carousel")
	assert.Error(t, err)
}

func TestAdMatchesAnyAndLibraryURL(t *testing.T) {
	a := Ad{AdArchiveID: "123", Tags: []string{"sale", "summer"}}
	assert.True(t, a.MatchesAny([]string{"winter", "sale"}))
	assert.False(t, a.MatchesAny([]string{"winter"}))
	assert.False(t, a.MatchesAny(nil))
	assert.Equal(t, "https://www.facebook.com/ads/library/?id=123", a.LibraryURL())
}

func TestNewAdBodyTextAndPageID(t *testing.T) {
	var n NewAd
	require.NoError(t, json.Unmarshal([]byte(`{
		"adId": "42",
		"full_html_text": "page text",
		"query_params": {"view_all_page_id": 987},
		"extra_data": {"snapshot": {"body": {"text": "snapshot body"}}}
	}`), &n))

	assert.Equal(t, "snapshot body", n.BodyText())
	assert.Equal(t, "987", n.PageID())

	n.ExtraData = nil
	n.QueryParams = nil
	assert.Equal(t, "page text", n.BodyText())
	assert.Equal(t, "", n.PageID())
}
