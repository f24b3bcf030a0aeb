package manifest

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

// ErrNoPackageName is returned when a manifest input carries no package name.
var ErrNoPackageName = errors.New("manifest must declare a non-empty package_name")

// Instrumentation describes a test package's runner declaration.
type Instrumentation struct {
	TargetPackage string `json:"target_package" yaml:"target_package"`
	Runner        string `json:"runner" yaml:"runner"`
}

// Manifest is the single normalized shape every manifest input form is
// reduced to before any lifecycle logic runs.
type Manifest struct {
	PackageName     string           `json:"package_name" yaml:"package_name"`
	Permissions     []string         `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Instrumentation *Instrumentation `json:"instrumentation,omitempty" yaml:"instrumentation,omitempty"`
}

// Validate checks the invariants all lifecycle code relies on.
func (m Manifest) Validate() error {
	if m.PackageName == "" {
		return ErrNoPackageName
	}
	return nil
}

// HasInstrumentation reports whether the manifest declares a usable
// instrumentation element (both target package and runner non-empty).
func (m Manifest) HasInstrumentation() bool {
	return m.Instrumentation != nil &&
		m.Instrumentation.TargetPackage != "" &&
		m.Instrumentation.Runner != ""
}

// FromMap normalizes a plain key/value mapping. The mapping must
// contain "package_name"; "permissions" is optional and may be a
// []string or []interface{} of strings.
func FromMap(in map[string]interface{}) (Manifest, error) {
	var m Manifest
	m.PackageName, _ = in["package_name"].(string)

	switch perms := in["permissions"].(type) {
	case []string:
		m.Permissions = append(m.Permissions, perms...)
	case []interface{}:
		for _, p := range perms {
			if s, ok := p.(string); ok {
				m.Permissions = append(m.Permissions, s)
			}
		}
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// FromYAML normalizes a YAML document of the mapping form.
func FromYAML(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest yaml: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// FromJSON normalizes a JSON document of the mapping form.
func FromJSON(data []byte) (Manifest, error) {
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest json: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
