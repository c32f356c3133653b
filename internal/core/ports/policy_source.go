package ports

import "github.com/pqsecure/mesh/internal/core/domain"

// PolicySource is the file-like policy source the core consumes,
// per spec.md §1's non-goal boundary: the core never walks a directory
// or reads YAML itself. Loading and compiling live in
// internal/adapters/secondary/policy.
type PolicySource interface {
	// Load parses and compiles the configured policy path into a
	// CompiledPolicy. A regex compilation failure is a hard load error.
	Load() (*domain.CompiledPolicy, error)
}
