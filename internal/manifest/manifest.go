// Package manifest parses plugin dependency manifests into typed module requests.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/plugforge/pipwright/internal/version"
)

// DependenciesKey is the manifest key holding the Python dependency list
// in a plugin's JSON manifest file.
const DependenciesKey = "sbcPythonDependencies"

// VerboseSentinel is the magic first manifest entry that requests verbose
// logging instead of naming a module. It is consumed during parsing and
// surfaces as RunOptions.Verbose, never as a module request.
const VerboseSentinel = "verbose"

// ErrMissingModule is returned when a request names no module at all.
var ErrMissingModule = errors.New("no module specified")

// Constraint restricts acceptable installed versions of a module to a single
// comparison against one version literal.
type Constraint struct {
	Op      version.Op
	Version string `validate:"required"`
}

// ModuleRequest is one entry of a manifest: a module name with an optional
// version constraint.
type ModuleRequest struct {
	Name       string `validate:"required"`
	Constraint *Constraint
}

// Spec renders the request as a pip requirement specifier, e.g. "requests>=2.0"
// or a bare "requests".
func (r ModuleRequest) Spec() string {
	if r.Constraint == nil {
		return r.Name
	}
	return r.Name + string(r.Constraint.Op) + r.Constraint.Version
}

// Manifest is an ordered sequence of module requests for one plugin.
type Manifest []ModuleRequest

// RunOptions carries per-run settings extracted from the manifest during
// parsing, keeping magic entries out of the request list.
type RunOptions struct {
	Verbose bool
}

var validate = validator.New()

// ParseRequest parses a single "name", "name<op>version" request string.
// The operator, when present, is normalized ("~=" becomes ">=") and the
// module name is canonicalized to pip's conventions.
func ParseRequest(raw string) (ModuleRequest, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ModuleRequest{}, ErrMissingModule
	}

	if strings.Contains(trimmed, ",") {
		return ModuleRequest{}, fmt.Errorf("multiple constraint clauses in %q: %w", raw, version.ErrUnsupportedConstraint)
	}

	name, op, literal := splitConstraint(trimmed)
	name = CanonicalName(name)

	if errValidateName := validateName(name, raw); errValidateName != nil {
		return ModuleRequest{}, errValidateName
	}

	request := ModuleRequest{Name: name}
	if op != "" {
		parsedOp, errParseOp := version.ParseOp(op)
		if errParseOp != nil {
			return ModuleRequest{}, errParseOp
		}
		if literal == "" {
			return ModuleRequest{}, fmt.Errorf("constraint %q has no version literal: %w", raw, version.ErrUnsupportedConstraint)
		}
		request.Constraint = &Constraint{
			Op:      version.NormalizeOp(parsedOp),
			Version: strings.TrimSpace(literal),
		}
	}

	if errValidate := validate.Struct(request); errValidate != nil {
		return ModuleRequest{}, fmt.Errorf("request validation failed: %w", errValidate)
	}

	return request, nil
}

// ParseManifest parses an ordered list of raw request strings. A leading
// VerboseSentinel entry toggles verbose logging and is not itself a request.
// Parse errors abort the whole manifest: nothing has been mutated yet, so
// failing early is safe.
func ParseManifest(entries []string) (Manifest, RunOptions, error) {
	var opts RunOptions

	if len(entries) > 0 && strings.EqualFold(strings.TrimSpace(entries[0]), VerboseSentinel) {
		opts.Verbose = true
		entries = entries[1:]
	}

	requests := make(Manifest, 0, len(entries))
	for _, entry := range entries {
		request, errParse := ParseRequest(entry)
		if errParse != nil {
			return nil, opts, fmt.Errorf("manifest entry %q: %w", entry, errParse)
		}
		requests = append(requests, request)
	}

	return requests, opts, nil
}

// LoadFile reads a plugin's JSON manifest file and returns the raw entries of
// its Python dependency list.
func LoadFile(path string) ([]string, error) {
	// #nosec G304 -- the manifest path is supplied by the operator invoking pipwright
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("manifest file %s is not valid JSON", path)
	}

	deps := gjson.GetBytes(data, DependenciesKey)
	if !deps.Exists() {
		return nil, fmt.Errorf("manifest file %s has no %q key", path, DependenciesKey)
	}
	if !deps.IsArray() {
		return nil, fmt.Errorf("manifest key %q must be an array of strings", DependenciesKey)
	}

	var entries []string
	for _, entry := range deps.Array() {
		entries = append(entries, entry.String())
	}

	return entries, nil
}

// CanonicalName normalizes a module name to pip's canonical form:
// lower case with "-" and "." folded to "_".
func CanonicalName(name string) string {
	canonical := strings.ToLower(strings.TrimSpace(name))
	canonical = strings.ReplaceAll(canonical, "-", "_")
	canonical = strings.ReplaceAll(canonical, ".", "_")
	return canonical
}

// splitConstraint splits a request at the first comparison operator.
// Two-character operators are tried before their one-character prefixes.
func splitConstraint(s string) (name, op, literal string) {
	for i := 0; i < len(s); i++ {
		for _, candidate := range version.Ops {
			if strings.HasPrefix(s[i:], string(candidate)) {
				return s[:i], string(candidate), s[i+len(candidate):]
			}
		}
	}
	return s, "", ""
}

func validateName(name, raw string) error {
	if name == "" {
		return fmt.Errorf("request %q: %w", raw, ErrMissingModule)
	}

	// A stray operator character in the name means the request used an
	// operator outside the supported set (e.g. "name=1.0" or "name!=1.0").
	if strings.ContainsAny(name, "=<>~!") {
		return fmt.Errorf("request %q: %w", raw, version.ErrUnsupportedConstraint)
	}

	for _, r := range name {
		if unicode.IsSpace(r) {
			return fmt.Errorf("request %q: module name contains whitespace: %w", raw, version.ErrUnsupportedConstraint)
		}
	}

	return nil
}
