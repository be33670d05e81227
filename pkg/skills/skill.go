// Package skills implements the skill registry and progressive disclosure
// loader. Skills are packaged as directories containing a SKILL.md file with
// YAML frontmatter describing the skill, followed by free-text instructions.
// Detail is escalated in three tiers: descriptor (metadata only, read at
// build time), body (instructions plus declared resource handles), and
// resource content (read on explicit dereference only).
package skills

// Descriptor is the discovery-tier view of a skill: identity and searchable
// metadata. Descriptors are immutable once the registry is built.
type Descriptor struct {
	ID          string // Unit directory base name; unique across the registry
	Name        string // Human-readable label from frontmatter
	Description string // Capability summary used for matching
	Dir         string // Full path to the skill unit directory
}

// Body is the instruction-tier view of a skill, loaded lazily from a
// Descriptor. Resource contents are not materialized here.
type Body struct {
	Instructions string     // Full instruction text (frontmatter stripped)
	Resources    []Resource // Declared resources, in declaration order
}

// ResourceKind distinguishes executable scripts from inert reference docs.
type ResourceKind string

const (
	// ResourceScript is code invocable through the sandbox executor.
	ResourceScript ResourceKind = "script"
	// ResourceReference is documentation consulted by instructions, never executed.
	ResourceReference ResourceKind = "reference"
)

// Resource is a handle to a declared resource file. The content is read only
// when the handle is dereferenced via Loader.LoadResource.
type Resource struct {
	SkillID string       // Owning skill id
	Dir     string       // Skill unit directory
	Path    string       // Path relative to the unit directory
	Kind    ResourceKind // script or reference
}

// manifest is the YAML frontmatter of a SKILL.md file.
type manifest struct {
	Name        string             `mapstructure:"name"`
	Description string             `mapstructure:"description"`
	Resources   []manifestResource `mapstructure:"resources"`
}

type manifestResource struct {
	Path string `mapstructure:"path"`
	Kind string `mapstructure:"kind"`
}
