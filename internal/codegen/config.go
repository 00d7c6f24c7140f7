// Package codegen lowers validated IR functions into callable native entry
// points: a real LLVM IR module (via github.com/llir/llvm, for inspection
// and as the native code artifact) and a closure compiler that produces
// the actual Go closures the runtime invokes, matching the exact ABI
// signature of the LLVM-lowered function.
package codegen

// Config mirrors the Codegen config shape.
type Config struct {
	OptLevel            OptLevel
	EnableVerifier      bool
	EnableSIMD          bool
	EnableJumpTables    bool
	EnableAliasAnalysis bool
	IsPIC               bool
}

// OptLevel is the backend optimization level.
type OptLevel string

const (
	OptNone  OptLevel = "none"
	OptSpeed OptLevel = "speed"
)

// Debug returns the debug() preset:
// {none, true, false, false, false, false}.
func Debug() Config {
	return Config{
		OptLevel:            OptNone,
		EnableVerifier:      true,
		EnableSIMD:          false,
		EnableJumpTables:    false,
		EnableAliasAnalysis: false,
		IsPIC:               false,
	}
}
