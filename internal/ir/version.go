package ir

// Version constants reported by the CLI and stamped on results.
const (
	// RuleLanguageVersion is the version of the rule DSL accepted by the compiler.
	RuleLanguageVersion = "1"

	// EngineVersion is the subsume engine version.
	EngineVersion = "0.1.0"
)
