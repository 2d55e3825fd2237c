package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadataFilter(t *testing.T) {
	f := ExtractMetadataFilter("Under the Fair Labor Standards Act, what overtime rules applied in Texas before 2020?")
	assert.Equal(t, []string{"texas"}, f.Jurisdictions)
	assert.Equal(t, []string{"Fair Labor Standards Act"}, f.ActNames)
	require.NotNil(t, f.EffectiveTo)
	assert.Equal(t, 2019, f.EffectiveTo.Year())
	assert.Nil(t, f.EffectiveFrom)
}

func TestExtractMetadataFilter_BetweenAndSections(t *testing.T) {
	f := ExtractMetadataFilter("How was section 12 of the Companies Act interpreted between 2015 and 2010 in the UK?")
	assert.Equal(t, []string{"united kingdom"}, f.Jurisdictions)
	assert.Equal(t, []string{"12"}, f.Sections)
	require.NotNil(t, f.EffectiveFrom)
	require.NotNil(t, f.EffectiveTo)
	assert.Equal(t, 2010, f.EffectiveFrom.Year())
	assert.Equal(t, 2015, f.EffectiveTo.Year())
}

func TestExtractMetadataFilter_Empty(t *testing.T) {
	f := ExtractMetadataFilter("what is consideration in a contract")
	assert.True(t, f.IsEmpty())
	assert.False(t, HasCitation("what is consideration in a contract"))
	assert.True(t, HasCitation("what does § 230 say"))
}

func TestExtractJurisdictions_WordBoundary(t *testing.T) {
	assert.Empty(t, extractJurisdictions("a neutral question about deus ex machina"))
	assert.Equal(t, []string{"european union"}, extractJurisdictions("GDPR in the EU"))
}

func TestMatchesFilter(t *testing.T) {
	f := ExtractMetadataFilter("rules in California since 2018")
	eff := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	old := time.Date(2001, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, MatchesFilter(f, "California", "", "", &eff))
	assert.False(t, MatchesFilter(f, "california", "", "", &old))
	assert.False(t, MatchesFilter(f, "texas", "", "", &eff))
	assert.False(t, MatchesFilter(f, "california", "", "", nil))
}
