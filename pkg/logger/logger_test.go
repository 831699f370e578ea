package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithComponentScopesEntry(t *testing.T) {
	log := logrus.New()

	entry := WithComponent(log, "fixtures")

	assert.Equal(t, log, entry.Logger)
	assert.Equal(t, "fixtures", entry.Data["component"])
}

func TestWithLeagueAddsLeagueContext(t *testing.T) {
	entry := WithLeague(WithComponent(logrus.New(), "standings"), 39, 2026)

	assert.Equal(t, 39, entry.Data["league"])
	assert.Equal(t, 2026, entry.Data["season"])
	assert.Equal(t, "standings", entry.Data["component"])
}

func TestWithDateAndRequestID(t *testing.T) {
	base := logrus.New().WithField("service", "matchradar")

	assert.Equal(t, "2026-08-23", WithDate(base, "2026-08-23").Data["date"])
	assert.Equal(t, "abc-123", WithRequestID(base, "abc-123").Data["request_id"])
}
