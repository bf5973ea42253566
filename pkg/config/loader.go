package config

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	"github.com/core-tools/hsu-entrypoint/pkg/errors"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

//go:embed profiles/*.yaml
var builtinProfiles embed.FS

// Source is a profile document that has not been expanded yet. Only its
// variable declarations are usable before the environment is validated.
type Source struct {
	Name      string
	Origin    string
	Variables []environment.Variable
	document  yaml.Node
}

type sourceHeader struct {
	Name      string                 `yaml:"name"`
	Variables []environment.Variable `yaml:"variables"`
}

// BuiltinProfiles returns the names of the embedded profiles.
func BuiltinProfiles() []string {
	entries, err := builtinProfiles.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadBuiltinProfile loads one of the embedded profiles by name.
func LoadBuiltinProfile(name string) (*Source, error) {
	data, err := builtinProfiles.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, errors.NewNotFoundError("unknown built-in profile: "+name, err).
			WithContext("available", strings.Join(BuiltinProfiles(), ", "))
	}
	return ParseSource(data, "builtin:"+name)
}

// LoadProfileFromFile loads a profile from a YAML file
func LoadProfileFromFile(filename string) (*Source, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read profile file", err).WithContext("filename", filename)
	}
	return ParseSource(data, filename)
}

// ParseSource parses a profile document and its variable declarations.
func ParseSource(data []byte, origin string) (*Source, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML profile", err).WithContext("origin", origin)
	}

	var header sourceHeader
	if err := document.Decode(&header); err != nil {
		return nil, errors.NewValidationError("failed to parse profile variables", err).WithContext("origin", origin)
	}
	if err := environment.ValidateDeclarations(header.Variables); err != nil {
		return nil, errors.NewValidationError("invalid variable declarations", err).WithContext("origin", origin)
	}

	return &Source{
		Name:      header.Name,
		Origin:    origin,
		Variables: header.Variables,
		document:  document,
	}, nil
}

// Resolve expands ${VAR} references against validated values and decodes
// the full profile. Variables that were not declared expand to "".
func (s *Source) Resolve(values environment.Values) (*Profile, error) {
	document := cloneNode(&s.document)
	if err := expandNode(document, values); err != nil {
		return nil, errors.NewConfigurationError("failed to expand profile", err).WithContext("origin", s.Origin)
	}

	var profile Profile
	if err := document.Decode(&profile); err != nil {
		return nil, errors.NewValidationError("failed to decode profile", err).WithContext("origin", s.Origin)
	}

	setProfileDefaults(&profile)

	if err := ValidateProfile(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Render returns the expanded profile as YAML for dry runs, with every
// secret value replaced by its mask.
func Render(profile *Profile, secrets []string) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(profile); err != nil {
		return "", errors.NewInternalError("failed to render profile", err)
	}
	if err := encoder.Close(); err != nil {
		return "", errors.NewInternalError("failed to render profile", err)
	}
	rendered := buf.String()
	for _, secret := range secrets {
		if secret != "" {
			rendered = strings.ReplaceAll(rendered, secret, environment.Mask(secret))
		}
	}
	return rendered, nil
}

func cloneNode(node *yaml.Node) *yaml.Node {
	clone := *node
	if len(node.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			clone.Content[i] = cloneNode(child)
		}
	}
	return &clone
}

// expandNode expands every scalar value in place. Mapping keys and the
// variables section are left alone. An expanded plain scalar has its tag
// re-resolved so "${PORT}" can decode into an int field.
func expandNode(node *yaml.Node, values environment.Values) error {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			if err := expandNode(child, values); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Value == "variables" {
				continue
			}
			if err := expandNode(value, values); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if !strings.Contains(node.Value, "$") {
			return nil
		}
		expanded, err := shell.Expand(node.Value, values.Lookup)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		node.Value = expanded
		if node.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 {
			node.Tag = ""
			if isNullLiteral(expanded) {
				node.Tag = "!!str"
			}
		}
	}
	return nil
}

// isNullLiteral reports values YAML would decode as null even though they
// came from the environment verbatim.
func isNullLiteral(value string) bool {
	switch value {
	case "~", "null", "Null", "NULL":
		return true
	}
	return false
}

// LoadSource loads the profile file when filename is set, otherwise the
// named built-in profile.
func LoadSource(filename, builtin string) (*Source, error) {
	if filename != "" {
		return LoadProfileFromFile(filename)
	}
	if builtin == "" {
		return nil, errors.NewConfigurationError("no profile selected", nil).
			WithContext("available", strings.Join(BuiltinProfiles(), ", "))
	}
	return LoadBuiltinProfile(builtin)
}
