package environment

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
)

// FileSuffix marks the Docker secrets convention: X_FILE names a file whose
// content becomes the value of X.
const FileSuffix = "_FILE"

// Variable declares one configuration key read from the process environment.
type Variable struct {
	Name     string  `yaml:"name"`
	Required bool    `yaml:"required,omitempty"`
	Default  *string `yaml:"default,omitempty"`
	// Sensitive values are masked in logs and plan output.
	Sensitive bool `yaml:"sensitive,omitempty"`
}

// Required declares a variable that must be present and non-empty.
func Required(name string) Variable {
	return Variable{Name: name, Required: true}
}

// Optional declares a variable with a default applied when it is unset or empty.
func Optional(name, defaultValue string) Variable {
	return Variable{Name: name, Default: &defaultValue}
}

// Values is the fully populated configuration produced by Validate.
type Values map[string]string

// Get returns the value for name, or "" when it was not declared.
func (v Values) Get(name string) string {
	return v[name]
}

// Lookup is a lookup function suitable for shell expansion.
func (v Values) Lookup(name string) string {
	return v[name]
}

// Environ overlays the values onto base (KEY=VALUE entries) and returns a
// new slice sorted by key. Declared values win over base entries.
func (v Values) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(v))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[key] = value
	}
	for key, value := range v {
		merged[key] = value
		delete(merged, key+FileSuffix)
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// LookupFunc reads one environment variable.
type LookupFunc func(name string) (string, bool)

// Options configures a Validator. Zero values fall back to the real process
// environment and filesystem.
type Options struct {
	Lookup   LookupFunc
	ReadFile func(path string) ([]byte, error)
	// Resolvers are consulted, in order, for values that look like secret
	// references (see SecretResolver.Handles).
	Resolvers []SecretResolver
}

// Validator checks declared variables before any side effect happens.
type Validator struct {
	lookup    LookupFunc
	readFile  func(string) ([]byte, error)
	resolvers []SecretResolver
	logger    logging.Logger
}

func NewValidator(options Options, logger logging.Logger) *Validator {
	if options.Lookup == nil {
		options.Lookup = os.LookupEnv
	}
	if options.ReadFile == nil {
		options.ReadFile = os.ReadFile
	}
	return &Validator{
		lookup:    options.Lookup,
		readFile:  options.ReadFile,
		resolvers: options.Resolvers,
		logger:    logger,
	}
}

// Validate returns the populated configuration, or a configuration error
// naming every missing or unreadable variable. It only reads: the
// environment, *_FILE secrets and secret references. References are
// resolved only once every variable is present, so a misconfigured
// container never reaches the network.
func (v *Validator) Validate(ctx context.Context, variables []Variable) (Values, error) {
	if err := ValidateDeclarations(variables); err != nil {
		return nil, err
	}

	values := make(Values, len(variables))
	problems := errors.NewErrorCollection()

	for _, variable := range variables {
		value, err := v.read(variable)
		if err != nil {
			problems.Add(err)
			continue
		}
		values[variable.Name] = value
	}
	if problems.HasErrors() {
		return nil, errors.NewConfigurationError("environment validation failed", problems)
	}

	for _, variable := range variables {
		value, err := v.resolveReference(ctx, variable, values[variable.Name])
		if err != nil {
			problems.Add(err)
			continue
		}
		values[variable.Name] = value
		v.logger.Debugf("Variable resolved, name: %s, value: %s", variable.Name, displayValue(variable, value))
	}
	if problems.HasErrors() {
		return nil, errors.NewConfigurationError("secret resolution failed", problems)
	}
	return values, nil
}

// read returns the raw value of variable from the environment, its *_FILE
// or its default.
func (v *Validator) read(variable Variable) (string, error) {
	value, _ := v.lookup(variable.Name)
	fileName, _ := v.lookup(variable.Name + FileSuffix)

	if value != "" && fileName != "" {
		return "", errors.NewConfigurationError(
			fmt.Sprintf("both %s and %s%s are set", variable.Name, variable.Name, FileSuffix), nil,
		).WithContext("variable", variable.Name)
	}

	if value == "" && fileName != "" {
		data, err := v.readFile(fileName)
		if err != nil {
			return "", errors.NewConfigurationError(
				fmt.Sprintf("cannot read %s%s", variable.Name, FileSuffix), err,
			).WithContext("variable", variable.Name).WithContext("file", fileName)
		}
		value = strings.TrimRight(string(data), "\r\n")
	}

	if value == "" && variable.Default != nil {
		value = *variable.Default
	}

	if value == "" && variable.Required {
		return "", errors.NewConfigurationError(
			fmt.Sprintf("required variable %s is not set", variable.Name), nil,
		).WithContext("variable", variable.Name)
	}
	return value, nil
}

func (v *Validator) resolveReference(ctx context.Context, variable Variable, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	for _, resolver := range v.resolvers {
		if !resolver.Handles(value) {
			continue
		}
		resolved, err := resolver.Resolve(ctx, value)
		if err != nil {
			return "", errors.NewConfigurationError(
				fmt.Sprintf("cannot resolve secret reference for %s", variable.Name), err,
			).WithContext("variable", variable.Name)
		}
		return resolved, nil
	}
	return value, nil
}

// ValidateDeclarations rejects malformed variable lists: empty or duplicate
// names.
func ValidateDeclarations(variables []Variable) error {
	seen := make(map[string]int, len(variables))
	for i, variable := range variables {
		if variable.Name == "" {
			return errors.NewValidationError(fmt.Sprintf("variable at index %d has no name", i), nil)
		}
		if strings.ContainsAny(variable.Name, "= \t") {
			return errors.NewValidationError(fmt.Sprintf("invalid variable name: %q", variable.Name), nil)
		}
		if prev, exists := seen[variable.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate variable '%s' found at indices %d and %d", variable.Name, prev, i), nil)
		}
		seen[variable.Name] = i
	}
	return nil
}

// Mask returns the value as it may appear in logs.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

func displayValue(variable Variable, value string) string {
	if variable.Sensitive {
		return Mask(value)
	}
	return value
}

// Display renders the values for plan output, masking sensitive ones.
func Display(variables []Variable, values Values) []string {
	lines := make([]string, 0, len(variables))
	for _, variable := range variables {
		lines = append(lines, fmt.Sprintf("%s=%s", variable.Name, displayValue(variable, values.Get(variable.Name))))
	}
	return lines
}
