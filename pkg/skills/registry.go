package skills

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/skillforge/skillforge/pkg/logger"
)

const skillFileName = "SKILL.md"

// frontmatterDelimiter separates the YAML header from the instruction body.
const frontmatterDelimiter = "---"

// Store scans configured directories for skill units and builds registries.
type Store struct {
	skillDirs []string
	strict    bool
}

// Option configures a Store.
type Option func(*Store) error

// WithSkillDirs sets custom skill directories.
func WithSkillDirs(dirs ...string) Option {
	return func(s *Store) error {
		s.skillDirs = dirs
		return nil
	}
}

// WithDefaultDirs initializes with the default skill directories.
func WithDefaultDirs() Option {
	return func(s *Store) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		s.skillDirs = []string{
			"./skills", // Repo-local (highest precedence in reporting order)
			filepath.Join(homeDir, ".skillforge", "skills"), // User-global
		}
		return nil
	}
}

// WithStrictBuild makes Build fail on the first malformed unit instead of
// skipping and reporting it.
func WithStrictBuild() Option {
	return func(s *Store) error {
		s.strict = true
		return nil
	}
}

// NewStore creates a new skill store.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(s); err != nil {
			return nil, err
		}
	} else {
		for _, opt := range opts {
			if err := opt(s); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

// Registry is an immutable id -> Descriptor mapping produced by Build.
// Multiple registries can coexist; nothing here is process-global.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string
	malformed   []UnitError
}

// Get returns the descriptor for an id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.descriptors[id]
	return d, ok
}

// Descriptors returns all descriptors ordered by ascending id.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descriptors[id])
	}
	return out
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// Malformed returns the units skipped during the build, in scan order.
func (r *Registry) Malformed() []UnitError {
	return r.malformed
}

type parsedUnit struct {
	path string // Path to SKILL.md
	dir  string // Unit directory
	id   string
	m    manifest
	err  error
}

// Build scans the configured directories and returns a registry of skill
// descriptors. Only the frontmatter header of each SKILL.md is read; bodies
// and resources stay untouched until a Loader escalates them. Units are
// parsed concurrently but assembled in deterministic order, so id collisions
// surface identically regardless of scan interleaving.
func (s *Store) Build(ctx context.Context) (*Registry, error) {
	var units []parsedUnit
	for _, dir := range s.skillDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			unitDir := filepath.Join(dir, name)
			info, err := os.Stat(unitDir)
			if err != nil || !info.IsDir() {
				continue
			}
			skillPath := filepath.Join(unitDir, skillFileName)
			if _, err := os.Stat(skillPath); err != nil {
				continue
			}
			units = append(units, parsedUnit{path: skillPath, dir: unitDir, id: name})
		}
	}

	var wg sync.WaitGroup
	for i := range units {
		wg.Add(1)
		go func(u *parsedUnit) {
			defer wg.Done()
			u.m, u.err = readHeader(u.path)
		}(&units[i])
	}
	wg.Wait()

	reg := &Registry{descriptors: make(map[string]Descriptor)}
	var strictErrs *multierror.Error

	for _, u := range units {
		if u.err != nil {
			unitErr := UnitError{Path: u.path, Err: u.err}
			if s.strict {
				strictErrs = multierror.Append(strictErrs, unitErr)
				continue
			}
			logger.G(ctx).WithError(u.err).WithField("skill", u.path).Warn("skipping malformed skill")
			reg.malformed = append(reg.malformed, unitErr)
			continue
		}

		if existing, ok := reg.descriptors[u.id]; ok {
			return nil, errors.Wrapf(ErrDuplicateSkill, "id %q declared by both %s and %s", u.id, existing.Dir, u.dir)
		}

		reg.descriptors[u.id] = Descriptor{
			ID:          u.id,
			Name:        u.m.Name,
			Description: u.m.Description,
			Dir:         u.dir,
		}
		reg.order = append(reg.order, u.id)
	}

	if err := strictErrs.ErrorOrNil(); err != nil {
		return nil, err
	}

	sort.Strings(reg.order)
	return reg, nil
}

// readHeader reads and validates the YAML frontmatter of a SKILL.md file
// without reading past the closing delimiter. Build cost stays proportional
// to header size, not document size.
func readHeader(path string) (manifest, error) {
	var m manifest

	f, err := os.Open(path)
	if err != nil {
		return m, errors.Wrap(err, "failed to open skill file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return m, errors.Wrap(ErrMalformedSkill, "missing frontmatter")
	}

	var header strings.Builder
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		header.WriteString(line)
		header.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return m, errors.Wrap(err, "failed to read skill file")
	}
	if !closed {
		return m, errors.Wrap(ErrMalformedSkill, "unterminated frontmatter")
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(header.String()), &raw); err != nil {
		return m, errors.Wrapf(ErrMalformedSkill, "invalid frontmatter yaml: %v", err)
	}
	if err := mapstructure.Decode(raw, &m); err != nil {
		return m, errors.Wrapf(ErrMalformedSkill, "invalid frontmatter: %v", err)
	}

	if m.Name == "" {
		return m, errors.Wrap(ErrMalformedSkill, "skill name is required in frontmatter")
	}
	if m.Description == "" {
		return m, errors.Wrap(ErrMalformedSkill, "skill description is required in frontmatter")
	}

	return m, nil
}
