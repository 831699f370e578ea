package providers

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/touchline/matchradar/internal/models"
)

// UpstreamErrors models the `errors` field of the provider envelope, which is
// an empty object on success and an object or array of messages on failure.
type UpstreamErrors struct {
	Messages []string
}

func (u *UpstreamErrors) UnmarshalJSON(data []byte) error {
	u.Messages = nil

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" || trimmed == "[]" {
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err == nil {
		keys := make([]string, 0, len(asMap))
		for key, value := range asMap {
			if strings.TrimSpace(value) == "" {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			u.Messages = append(u.Messages, fmt.Sprintf("%s: %s", key, asMap[key]))
		}
		return nil
	}

	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		for _, value := range asList {
			if strings.TrimSpace(value) != "" {
				u.Messages = append(u.Messages, value)
			}
		}
		return nil
	}

	var asText string
	if err := json.Unmarshal(data, &asText); err == nil {
		if strings.TrimSpace(asText) != "" {
			u.Messages = append(u.Messages, asText)
		}
		return nil
	}

	// Unknown shape still counts as a failed call.
	u.Messages = append(u.Messages, trimmed)
	return nil
}

func (u UpstreamErrors) HasErrors() bool { return len(u.Messages) > 0 }

func (u UpstreamErrors) Text() string { return strings.Join(u.Messages, "; ") }

type fixturesEnvelope struct {
	Errors   UpstreamErrors `json:"errors"`
	Response []models.Match `json:"response"`
}

type standingsEnvelope struct {
	Errors   UpstreamErrors  `json:"errors"`
	Response []standingsItem `json:"response"`
}

type standingsItem struct {
	League struct {
		ID        int             `json:"id"`
		Season    int             `json:"season"`
		Standings [][]StandingRow `json:"standings"`
	} `json:"league"`
}

// StandingRow is one ranked team as returned by the standings endpoint.
type StandingRow struct {
	Rank   int          `json:"rank"`
	Points int          `json:"points"`
	Form   string       `json:"form"`
	Team   StandingTeam `json:"team"`
}

// StandingTeam identifies the team on a standings row.
type StandingTeam struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}
