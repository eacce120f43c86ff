package ir

// Version constants for the stored schema and the engine.
const (
	// SchemaVersion is the record layout version written to the store.
	SchemaVersion = "1"

	// EngineVersion is the EDB engine version.
	EngineVersion = "0.1.0"
)
