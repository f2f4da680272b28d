package ir

// Version constants for the data model and engine.
const (
	// SchemaVersion is the version of the commitment document layout.
	SchemaVersion = "1"

	// EngineVersion is the lmssync engine version.
	EngineVersion = "0.1.0"
)
