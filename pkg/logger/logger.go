package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	// Set formatter based on environment
	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.SetOutput(os.Stdout)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithComponent scopes a logger to one engine component
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("component", component)
}

// WithDate adds the fixture date key to a log entry
func WithDate(entry *logrus.Entry, dateKey string) *logrus.Entry {
	return entry.WithField("date", dateKey)
}

// WithLeague adds league and season context to a log entry
func WithLeague(entry *logrus.Entry, leagueID, season int) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"league": leagueID,
		"season": season,
	})
}

// WithRequestID adds request correlation context to a log entry
func WithRequestID(entry *logrus.Entry, requestID string) *logrus.Entry {
	return entry.WithField("request_id", requestID)
}
