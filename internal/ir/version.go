package ir

// Version constants for IR schema, runtime and the shared firmware contract.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// EngineVersion is the ledcore runtime version.
	EngineVersion = "0.3.0"

	// OpSetVersion pins the firmware op-set both runtimes conform to.
	// Bump when an op is added, removed or changes meaning.
	OpSetVersion = "ledcore/opset/v1"

	// ToleranceTableVersion pins the parameter allow-list and tolerances.
	ToleranceTableVersion = "ledcore/tolerance/v1"
)
