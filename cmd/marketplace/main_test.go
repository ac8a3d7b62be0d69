package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	setupLogger("debug")
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	setupLogger("not-a-level")
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("unknown level must fall back to info, got %s", log.GetLevel())
	}

	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	if !ok || !formatter.FullTimestamp {
		t.Fatalf("expected text formatter with full timestamps, got %T", log.StandardLogger().Formatter)
	}
}
