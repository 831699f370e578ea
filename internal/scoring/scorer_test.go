package scoring

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchline/matchradar/internal/models"
)

func quietScorer() *MatchScorer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMatchScorer(logger)
}

func fixture(id int64, leagueID int, round, home, away string) models.Match {
	fixtureID := id
	return models.Match{
		Fixture: models.Fixture{ID: &fixtureID, Date: "2026-08-23T15:00:00Z"},
		League:  models.League{ID: leagueID, Name: "League", Season: 2026, Round: round},
		Teams: models.Teams{
			Home: models.Team{Name: home},
			Away: models.Team{Name: away},
		},
	}
}

func TestDetectDerbyExactMatchOnly(t *testing.T) {
	tests := []struct {
		home, away string
		want       bool
		label      string
	}{
		{"Real Madrid", "Barcelona", true, "El Clásico 🔥"},
		{"Barcelona", "Real Madrid", true, "El Clásico 🔥"},
		{"Inter", "AC Milan", true, "Derby della Madonnina"},
		{"Inter Miami", "AC Milan", false, ""},
		{"Liverpool", "Everton", true, "Merseyside Derby"},
		{"Arsenal", "Chelsea", false, ""},
	}
	for _, tt := range tests {
		isDerby, label := detectDerby(tt.home, tt.away)
		assert.Equal(t, tt.want, isDerby, "%s vs %s", tt.home, tt.away)
		assert.Equal(t, tt.label, label)
	}
}

func TestDetectKnockoutStageOrdering(t *testing.T) {
	tests := []struct {
		round    string
		leagueID int
		want     bool
		label    string
	}{
		{"Semi-finals", 2, true, "UCL Semi-Final"},
		{"Quarter-finals", 39, true, "Quarter-Final"},
		{"Final", 2, true, "UCL Final"},
		{"Round of 16", 2, true, "UCL Round of 16"},
		{"Regular Season - 12", 39, false, ""},
		{"Group Stage - 3", 2, false, ""},
		{"League Stage - 5", 2, false, ""},
		{"Knockout Round Play-offs", 2, true, "UCL Knockout Playoff"},
	}
	for _, tt := range tests {
		isKnockout, label := detectKnockout(tt.round, tt.leagueID)
		assert.Equal(t, tt.want, isKnockout, tt.round)
		assert.Equal(t, tt.label, label, tt.round)
	}
}

func TestSemiFinalNotMistakenForFinal(t *testing.T) {
	_, label := detectKnockout("Semi-final first leg", 39)
	assert.Equal(t, "Semi-Final", label)
}

func TestScoresAreClampedAndSortedDescending(t *testing.T) {
	scorer := quietScorer()

	matches := []models.Match{
		fixture(1, 39, "Regular Season - 2", "Brentford", "Fulham"),
		fixture(2, 2, "Final", "Real Madrid", "Barcelona"),
		fixture(3, 39, "Regular Season - 2", "Arsenal", "Tottenham"),
	}

	scored := scorer.ScoreMatches(matches, Preferences{FavoriteTeam: "real madrid"}, nil)
	require.Len(t, scored, 3)

	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
	for _, match := range scored {
		assert.GreaterOrEqual(t, match.Score, 0)
		assert.LessOrEqual(t, match.Score, 100)
	}
	assert.Equal(t, int64(2), scored[0].ID, "UCL final with the favorite team ranks first")
	assert.Equal(t, 100, scored[0].Score)
}

func TestFixturesWithoutIDAreSkipped(t *testing.T) {
	scorer := quietScorer()

	withID := fixture(1, 39, "", "Arsenal", "Chelsea")
	withoutID := fixture(0, 39, "", "Leeds", "Burnley")
	withoutID.Fixture.ID = nil

	scored := scorer.ScoreMatches([]models.Match{withID, withoutID}, Preferences{}, nil)
	require.Len(t, scored, 1)
	assert.Equal(t, int64(1), scored[0].ID)
}

func TestFavoriteTeamBonusAppliesSubstringMatch(t *testing.T) {
	scorer := quietScorer()
	match := fixture(1, 39, "Regular Season - 2", "Arsenal", "Chelsea")

	neutral := scorer.ScoreMatches([]models.Match{match}, Preferences{}, nil)
	boosted := scorer.ScoreMatches([]models.Match{match}, Preferences{FavoriteTeam: "arsenal"}, nil)

	require.Len(t, neutral, 1)
	require.Len(t, boosted, 1)
	assert.Equal(t, neutral[0].Score+40, boosted[0].Score)
	assert.True(t, strings.HasPrefix(boosted[0].Reason, "Your Favourite Team"))
}

func TestTacticalBonusUsesStandings(t *testing.T) {
	scorer := quietScorer()
	match := fixture(1, 39, "Regular Season - 2", "Arsenal", "Chelsea")

	standings := func(leagueID, season int) map[string]models.TeamStanding {
		return map[string]models.TeamStanding{
			"arsenal": {Rank: 1, Points: 40, Form: "WWWWW"},
			"chelsea": {Rank: 2, Points: 38, Form: "WWWDW"},
		}
	}

	plain := scorer.ScoreMatches([]models.Match{match}, Preferences{}, standings)
	tactical := scorer.ScoreMatches([]models.Match{match}, Preferences{PrefersTactics: true}, standings)

	assert.Equal(t, plain[0].Score+20, tactical[0].Score)
	assert.Contains(t, tactical[0].Reason, "Tight Tactical Matchup")
}

func TestGoalsBonusRequiresBothTeamsInForm(t *testing.T) {
	scorer := quietScorer()
	match := fixture(1, 39, "Regular Season - 2", "Arsenal", "Chelsea")

	hotForm := func(leagueID, season int) map[string]models.TeamStanding {
		return map[string]models.TeamStanding{
			"arsenal": {Rank: 1, Points: 40, Form: "WWWWW"},
			"chelsea": {Rank: 10, Points: 20, Form: "WWWWW"},
		}
	}
	coldForm := func(leagueID, season int) map[string]models.TeamStanding {
		return map[string]models.TeamStanding{
			"arsenal": {Rank: 1, Points: 40, Form: "WWWWW"},
			"chelsea": {Rank: 10, Points: 20, Form: "LLLLL"},
		}
	}

	hot := scorer.ScoreMatches([]models.Match{match}, Preferences{PrefersGoals: true}, hotForm)
	cold := scorer.ScoreMatches([]models.Match{match}, Preferences{PrefersGoals: true}, coldForm)

	assert.Contains(t, hot[0].Reason, "Heavy Goalscoring Form")
	assert.NotContains(t, cold[0].Reason, "Heavy Goalscoring Form")
}

func TestReasonsCappedAtThree(t *testing.T) {
	scorer := quietScorer()
	// A UCL final between clasico rivals trips many reason rules at once.
	match := fixture(1, 2, "Final", "Real Madrid", "Barcelona")

	scored := scorer.ScoreMatches([]models.Match{match}, Preferences{FavoriteTeam: "real madrid", PrefersGoals: true, PrefersTactics: true}, nil)
	require.Len(t, scored, 1)

	assert.LessOrEqual(t, len(strings.Split(scored[0].Reason, ", ")), 3)
}

func TestPercentileLabelsUseOrdinalSuffixes(t *testing.T) {
	scorer := quietScorer()

	tests := []struct {
		score int
		want  string
	}{
		{0, "1st percentile"},
		{100, "99th percentile"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.percentileLabel(tt.score))
	}

	assert.Equal(t, "st", ordinalSuffix(21))
	assert.Equal(t, "nd", ordinalSuffix(22))
	assert.Equal(t, "rd", ordinalSuffix(23))
	assert.Equal(t, "th", ordinalSuffix(11))
	assert.Equal(t, "th", ordinalSuffix(12))
	assert.Equal(t, "th", ordinalSuffix(13))
}

func TestFallbackTeamStatsAreDeterministic(t *testing.T) {
	rank1, points1, form1 := fallbackTeamStats("Union Berlin")
	rank2, points2, form2 := fallbackTeamStats("Union Berlin")

	assert.Equal(t, rank1, rank2)
	assert.Equal(t, points1, points2)
	assert.Equal(t, form1, form2)
	assert.GreaterOrEqual(t, rank1, 1)
	assert.LessOrEqual(t, rank1, 20)
}
