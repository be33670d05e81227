package skills

import "github.com/pkg/errors"

// Sentinel errors for registry building and loading. Callers test for them
// with errors.Is; wrapping adds unit-specific context.
var (
	// ErrMalformedSkill marks a unit whose frontmatter is missing or lacks
	// required fields, or whose declared resources are invalid.
	ErrMalformedSkill = errors.New("malformed skill")

	// ErrDuplicateSkill marks an id collision between two units. Always fatal
	// at build time regardless of scan order.
	ErrDuplicateSkill = errors.New("duplicate skill")

	// ErrSkillNotFound marks a descriptor that no longer resolves to a
	// readable unit (e.g. deleted between discovery and load).
	ErrSkillNotFound = errors.New("skill not found")

	// ErrResourceNotFound marks a declared resource that cannot be read.
	ErrResourceNotFound = errors.New("resource not found")
)

// UnitError records a unit that failed to parse during a build.
type UnitError struct {
	Path string // Path to the unit's SKILL.md
	Err  error
}

func (e UnitError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e UnitError) Unwrap() error {
	return e.Err
}
