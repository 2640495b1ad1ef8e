package commands

import "github.com/btcsuite/btclog/v2"

// Subsystem is the logging tag of the CLI.
const Subsystem = "TSCL"

var log = btclog.Disabled

// UseLogger sets the CLI logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
