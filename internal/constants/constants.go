// Package constants provides values shared across the pipeline packages:
// environment names, timeouts and the intake's wire vocabulary.
package constants

import "time"

const (
	// NonProductionEnvironment is the environment name for non-production environments.
	NonProductionEnvironment = "development"
	// DefaultTimeout bounds metrics handler fan-out.
	DefaultTimeout = 5 * time.Second
)
