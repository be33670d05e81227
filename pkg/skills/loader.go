package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Loader escalates a skill one disclosure tier at a time: a caller holding a
// Descriptor obtains a Body via LoadBody, and resource bytes only via
// LoadResource on a handle taken from that Body. Loaders are stateless and
// safe for concurrent use; every call re-reads current on-disk state.
type Loader struct{}

// NewLoader creates a skill loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadBody reads the full SKILL.md of a discovered skill and returns its
// instruction text plus declared resource handles. Resource contents are not
// read. Fails with ErrSkillNotFound if the unit no longer resolves.
func (l *Loader) LoadBody(desc Descriptor) (*Body, error) {
	path := filepath.Join(desc.Dir, skillFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrSkillNotFound, "skill %q: %v", desc.ID, err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse skill document")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.Wrapf(ErrMalformedSkill, "skill %q: missing frontmatter", desc.ID)
	}

	var m manifest
	if err := mapstructure.Decode(metaData, &m); err != nil {
		return nil, errors.Wrapf(ErrMalformedSkill, "skill %q: invalid frontmatter: %v", desc.ID, err)
	}

	resources := make([]Resource, 0, len(m.Resources))
	for _, r := range m.Resources {
		kind := ResourceKind(r.Kind)
		if kind != ResourceScript && kind != ResourceReference {
			return nil, errors.Wrapf(ErrMalformedSkill, "skill %q: unknown resource kind %q", desc.ID, r.Kind)
		}
		if r.Path == "" {
			return nil, errors.Wrapf(ErrMalformedSkill, "skill %q: resource path is required", desc.ID)
		}
		resources = append(resources, Resource{
			SkillID: desc.ID,
			Dir:     desc.Dir,
			Path:    r.Path,
			Kind:    kind,
		})
	}

	return &Body{
		Instructions: extractBodyContent(string(content)),
		Resources:    resources,
	}, nil
}

// LoadResource dereferences a resource handle and returns its content. The
// file is re-read on every call; nothing is cached between dereferences.
// Paths escaping the skill unit directory are rejected.
func (l *Loader) LoadResource(handle Resource) ([]byte, error) {
	rel := filepath.Clean(handle.Path)
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.Wrapf(ErrResourceNotFound, "resource path %q escapes skill directory", handle.Path)
	}

	content, err := os.ReadFile(filepath.Join(handle.Dir, rel))
	if err != nil {
		return nil, errors.Wrapf(ErrResourceNotFound, "skill %q resource %q: %v", handle.SkillID, handle.Path, err)
	}
	return content, nil
}

// ScriptResource returns the first declared script resource of a body, if any.
func (b *Body) ScriptResource() (Resource, bool) {
	for _, r := range b.Resources {
		if r.Kind == ResourceScript {
			return r, true
		}
	}
	return Resource{}, false
}

// extractBodyContent removes YAML frontmatter and returns the body.
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
