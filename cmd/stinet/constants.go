package main

import "github.com/ersonp/stinet/internal/infrastructure/config"

const defaultScenario = config.DefaultScenario

// Default limits for CLI commands.
const (
	DefaultRunsLimit          = 20
	DefaultEventsLimit        = 50
	DefaultRelationshipsLimit = 100
)

// Valid export formats.
var validFormats = []string{"json", "csv"}
