// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

const (
	// FlowDataFile is the per-run time series written by the simulator.
	FlowDataFile = "flow_data.csv"

	// AvalancheDataFile is the simulator's own event log.
	AvalancheDataFile = "avalanche_data.csv"

	// DefaultFlowPattern matches every flow series below a discovery root.
	DefaultFlowPattern = "**/" + FlowDataFile

	// DefaultEventPattern matches every event log below a discovery root.
	DefaultEventPattern = "**/" + AvalancheDataFile

	// DefaultGnuplotBinWidth is the fixed bin width of gnuplot tables.
	DefaultGnuplotBinWidth = 200

	// SizeColumn is the header of raw size tables.
	SizeColumn = "tamaño_avalancha"
)
