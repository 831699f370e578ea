package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchline/matchradar/internal/models"
)

func matchWithLogos(leagueLogo, homeLogo, awayLogo string) models.Match {
	homeID := int64(101)
	awayID := int64(202)
	return models.Match{
		League: models.League{ID: 39, Name: "Premier League", Logo: leagueLogo},
		Teams: models.Teams{
			Home: models.Team{ID: &homeID, Name: "Arsenal", Logo: homeLogo},
			Away: models.Team{ID: &awayID, Name: "Chelsea", Logo: awayLogo},
		},
	}
}

func TestLogoIndexEnrichFillsMissingLogos(t *testing.T) {
	index := NewLogoIndex()

	source := []models.Match{matchWithLogos(
		"https://media.example/leagues/39.png",
		"https://media.example/teams/101.png",
		"https://media.example/teams/202.png",
	)}
	require.True(t, index.IndexFrom(source))

	bare := []models.Match{matchWithLogos("", "", "")}
	changed := index.Enrich(bare)

	assert.True(t, changed)
	assert.Equal(t, "https://media.example/leagues/39.png", bare[0].League.Logo)
	assert.Equal(t, "https://media.example/teams/101.png", bare[0].Teams.Home.Logo)
	assert.Equal(t, "https://media.example/teams/202.png", bare[0].Teams.Away.Logo)
}

func TestLogoIndexFallsBackToNameLookup(t *testing.T) {
	index := NewLogoIndex()
	require.True(t, index.IndexTeam(nil, "  Arsenal ", "https://media.example/teams/arsenal.png"))

	bare := []models.Match{matchWithLogos("", "", "")}
	// The cached id differs from the request's, so the name bucket resolves it.
	otherID := int64(999)
	bare[0].Teams.Home.ID = &otherID

	index.Enrich(bare)
	assert.Equal(t, "https://media.example/teams/arsenal.png", bare[0].Teams.Home.Logo)
}

func TestLogoIndexIdempotent(t *testing.T) {
	index := NewLogoIndex()
	source := []models.Match{matchWithLogos(
		"https://media.example/leagues/39.png",
		"https://media.example/teams/101.png",
		"https://media.example/teams/202.png",
	)}

	assert.True(t, index.IndexFrom(source))
	assert.False(t, index.IndexFrom(source), "second pass records nothing new")

	enriched := []models.Match{matchWithLogos("", "", "")}
	assert.True(t, index.Enrich(enriched))
	assert.False(t, index.Enrich(enriched), "second enrich changes nothing")
}

func TestLogoIndexRejectsRelativeURLs(t *testing.T) {
	index := NewLogoIndex()

	changed := index.IndexFrom([]models.Match{matchWithLogos("/leagues/39.png", "data:image/png;base64,xx", " ")})
	assert.False(t, changed)

	assert.False(t, index.IndexTeam(nil, "Arsenal", "ftp://media.example/a.png"))
}

func TestLogoIndexSnapshotRoundTrip(t *testing.T) {
	index := NewLogoIndex()
	require.True(t, index.IndexTeam(nil, "Arsenal", "https://media.example/teams/arsenal.png"))

	reloaded := NewLogoIndex()
	reloaded.Load(index.Snapshot())

	bare := []models.Match{matchWithLogos("", "", "")}
	bare[0].Teams.Home.ID = nil
	reloaded.Enrich(bare)
	assert.Equal(t, "https://media.example/teams/arsenal.png", bare[0].Teams.Home.Logo)
}

func TestLogoIndexLoadDropsJunkEntries(t *testing.T) {
	index := NewLogoIndex()
	index.Load(map[string]map[string]string{
		bucketTeamsByName: {
			"arsenal": "relative/path.png",
			"chelsea": "https://media.example/teams/chelsea.png",
			"":        "https://media.example/teams/anon.png",
		},
	})

	snapshot := index.Snapshot()
	assert.Len(t, snapshot[bucketTeamsByName], 1)
	assert.Contains(t, snapshot[bucketTeamsByName], "chelsea")
}
