package services

import (
	"strconv"
	"strings"

	"github.com/touchline/matchradar/internal/models"
)

// Logo index buckets, persisted together as one namespace document.
const (
	bucketLeaguesByID   = "leagues_by_id"
	bucketLeaguesByName = "leagues_by_name"
	bucketTeamsByID     = "teams_by_id"
	bucketTeamsByName   = "teams_by_name"
)

// LogoIndex is a bidirectional lookup from league/team ids and normalized
// names to last-known logo URLs. Entries are additive and overwritten, never
// deleted; only absolute http(s) URLs are stored.
type LogoIndex struct {
	buckets map[string]map[string]string
}

func NewLogoIndex() *LogoIndex {
	return &LogoIndex{buckets: map[string]map[string]string{
		bucketLeaguesByID:   {},
		bucketLeaguesByName: {},
		bucketTeamsByID:     {},
		bucketTeamsByName:   {},
	}}
}

// Load replaces the index content from a persisted document, dropping keys
// with empty or non-absolute URLs.
func (x *LogoIndex) Load(doc map[string]map[string]string) {
	for bucket := range x.buckets {
		loaded := doc[bucket]
		cleaned := make(map[string]string, len(loaded))
		for key, value := range loaded {
			if strings.TrimSpace(key) == "" {
				continue
			}
			if logo := cleanLogoURL(value); logo != "" {
				cleaned[key] = logo
			}
		}
		x.buckets[bucket] = cleaned
	}
}

// Snapshot returns the persistable document form of the index.
func (x *LogoIndex) Snapshot() map[string]map[string]string {
	doc := make(map[string]map[string]string, len(x.buckets))
	for bucket, entries := range x.buckets {
		copied := make(map[string]string, len(entries))
		for key, value := range entries {
			copied[key] = value
		}
		doc[bucket] = copied
	}
	return doc
}

func (x *LogoIndex) set(bucket, key, logo string) bool {
	if key == "" || logo == "" {
		return false
	}
	entries := x.buckets[bucket]
	if entries[key] == logo {
		return false
	}
	entries[key] = logo
	return true
}

func (x *LogoIndex) lookup(idBucket, nameBucket, idKey, nameKey string) string {
	if logo := x.buckets[idBucket][idKey]; logo != "" {
		return logo
	}
	return x.buckets[nameBucket][nameKey]
}

// IndexFrom scans a result set and records any new id/name to logo
// associations it discovers. Idempotent; reports whether anything changed.
func (x *LogoIndex) IndexFrom(matches []models.Match) bool {
	changed := false
	for _, match := range matches {
		if logo := cleanLogoURL(match.League.Logo); logo != "" {
			changed = x.set(bucketLeaguesByID, strconv.Itoa(match.League.ID), logo) || changed
			changed = x.set(bucketLeaguesByName, normalizeKey(match.League.Name), logo) || changed
		}
		for _, team := range []models.Team{match.Teams.Home, match.Teams.Away} {
			logo := cleanLogoURL(team.Logo)
			if logo == "" {
				continue
			}
			changed = x.set(bucketTeamsByID, teamIDKey(team), logo) || changed
			changed = x.set(bucketTeamsByName, normalizeKey(team.Name), logo) || changed
		}
	}
	return changed
}

// IndexTeam records one team association directly, used by standings rows.
func (x *LogoIndex) IndexTeam(id *int64, name, logo string) bool {
	cleaned := cleanLogoURL(logo)
	if cleaned == "" {
		return false
	}
	idKey := ""
	if id != nil {
		idKey = strconv.FormatInt(*id, 10)
	}
	changed := x.set(bucketTeamsByID, idKey, cleaned)
	changed = x.set(bucketTeamsByName, normalizeKey(name), cleaned) || changed
	return changed
}

// Enrich fills missing league and team logos in place from the index,
// looking up by id first, then by normalized name. Idempotent; reports
// whether anything changed.
func (x *LogoIndex) Enrich(matches []models.Match) bool {
	changed := false
	for i := range matches {
		match := &matches[i]
		if cleanLogoURL(match.League.Logo) == "" {
			replacement := x.lookup(
				bucketLeaguesByID, bucketLeaguesByName,
				strconv.Itoa(match.League.ID), normalizeKey(match.League.Name),
			)
			if replacement != "" {
				match.League.Logo = replacement
				changed = true
			}
		}
		for _, team := range []*models.Team{&match.Teams.Home, &match.Teams.Away} {
			if cleanLogoURL(team.Logo) != "" {
				continue
			}
			replacement := x.lookup(
				bucketTeamsByID, bucketTeamsByName,
				teamIDKey(*team), normalizeKey(team.Name),
			)
			if replacement != "" {
				team.Logo = replacement
				changed = true
			}
		}
	}
	return changed
}

func teamIDKey(team models.Team) string {
	if team.ID == nil {
		return ""
	}
	return strconv.FormatInt(*team.ID, 10)
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// cleanLogoURL returns the trimmed URL when it is absolute http(s),
// otherwise empty.
func cleanLogoURL(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		return text
	}
	return ""
}
