// Package scenario loads scenario documents from YAML or JSON and validates them against
// the step grammar before anything touches a browser.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
)

// Format is a scenario document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DefaultIterations applies when a document omits "iteration".
const DefaultIterations = 1

// maxWaitMillis is the largest wait that still fits a time.Duration.
const maxWaitMillis = math.MaxInt64 / int64(time.Millisecond)

var strictJSON = jsoniter.Config{
	EscapeHTML:             true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported scenario file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
}

// LoadFile reads and validates the scenario at path. A leading ~ is expanded. When the
// document has no name, the file name without extension is used.
func LoadFile(path string) (schemas.Scenario, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return schemas.Scenario{}, fmt.Errorf("failed to expand scenario path %q: %w", path, err)
	}
	format, err := FormatOf(expanded)
	if err != nil {
		return schemas.Scenario{}, err
	}

	f, err := os.Open(expanded)
	if err != nil {
		return schemas.Scenario{}, fmt.Errorf("failed to open scenario file: %w", err)
	}
	defer f.Close()

	sc, err := Decode(f, format)
	if err != nil {
		return schemas.Scenario{}, fmt.Errorf("%s: %w", expanded, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(expanded), filepath.Ext(expanded))
	}
	return sc, nil
}

// Decode reads one document from r. Every structural problem is reported as a
// *schemas.MalformedScenarioError.
func Decode(r io.Reader, format Format) (schemas.Scenario, error) {
	var doc document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return schemas.Scenario{}, decodeErr(err)
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return schemas.Scenario{}, errTrailingContent
		}
	case FormatJSON:
		dec := strictJSON.NewDecoder(r)
		if err := dec.Decode(&doc); err != nil {
			return schemas.Scenario{}, decodeErr(err)
		}
		if dec.More() {
			return schemas.Scenario{}, errTrailingContent
		}
	default:
		return schemas.Scenario{}, fmt.Errorf("unsupported scenario format %q", format)
	}
	return convert(doc)
}

var errTrailingContent = &schemas.MalformedScenarioError{Reason: "trailing content"}

func decodeErr(err error) error {
	if errors.Is(err, io.EOF) {
		return &schemas.MalformedScenarioError{Reason: "empty document"}
	}
	return &schemas.MalformedScenarioError{Reason: "cannot decode document", Err: err}
}

func convert(doc document) (schemas.Scenario, error) {
	sc := schemas.Scenario{
		Name:       doc.Name,
		URL:        doc.URL,
		Iterations: DefaultIterations,
	}
	if doc.Iteration != nil {
		if *doc.Iteration < 0 {
			return sc, malformed("iteration", "must not be negative")
		}
		sc.Iterations = *doc.Iteration
	}

	steps, err := convertSteps("steps", doc.Steps)
	if err != nil {
		return sc, err
	}
	sc.Steps = steps
	if sc.URL == "" && sc.Iterations > 0 {
		return sc, malformed("url", "required when iteration is greater than zero")
	}

	if p := doc.Precondition; p != nil {
		sc.Precondition.URL = p.URL
		if sc.Precondition.Steps, err = convertSteps("precondition.steps", p.Steps); err != nil {
			return sc, err
		}
		if p.URL == "" && len(p.Steps) > 0 {
			return sc, malformed("precondition.url", "required when the precondition has steps")
		}
		if p.Ensure != nil {
			e, err := convertEnsure("precondition.ensure", p.Ensure.Location, p.Ensure.LocationRegexp)
			if err != nil {
				return sc, err
			}
			sc.Precondition.Ensure = &e
		}
	}
	return sc, nil
}

func convertSteps(field string, docs []stepDoc) ([]schemas.Step, error) {
	steps := make([]schemas.Step, 0, len(docs))
	for i, d := range docs {
		path := fmt.Sprintf("%s[%d].action", field, i)
		if d.Action == nil {
			return nil, malformed(path, "required")
		}
		action, err := convertAction(path, d.Action)
		if err != nil {
			return nil, err
		}
		steps = append(steps, schemas.Step{Action: action})
	}
	return steps, nil
}

func convertAction(path string, a *actionDoc) (schemas.Action, error) {
	kind := schemas.ActionKind(a.Type)
	if err := disallowed(path, a); err != nil {
		return nil, err
	}

	switch kind {
	case schemas.KindInput:
		selector, err := formSelector(path, kind, a.Form)
		if err != nil {
			return nil, err
		}
		if a.Form.Value != nil && a.Form.Regexp != nil {
			return nil, malformed(path+".form", "value and regexp are mutually exclusive")
		}
		if a.Form.Regexp != nil {
			if _, err := regexp.Compile(*a.Form.Regexp); err != nil {
				return nil, &schemas.MalformedScenarioError{Field: path + ".form.regexp", Reason: "invalid pattern", Err: err}
			}
		}
		if len(a.Form.Values) > 0 {
			return nil, malformed(path+".form.values", "not allowed for input action")
		}
		return schemas.InputAction{Selector: selector, Value: a.Form.Value, Regexp: a.Form.Regexp}, nil

	case schemas.KindSelect:
		selector, err := formSelector(path, kind, a.Form)
		if err != nil {
			return nil, err
		}
		if a.Form.Value != nil || a.Form.Regexp != nil {
			return nil, malformed(path+".form", "select takes values, not value or regexp")
		}
		if len(a.Form.Values) == 0 {
			return nil, malformed(path+".form.values", "select needs at least one value")
		}
		values := append([]string(nil), a.Form.Values...)
		return schemas.SelectAction{Selector: selector, Values: values}, nil

	case schemas.KindRadio:
		selector, err := formSelector(path, kind, a.Form)
		if err != nil {
			return nil, err
		}
		if a.Form.Value != nil || a.Form.Regexp != nil || len(a.Form.Values) > 0 {
			return nil, malformed(path+".form", "radio takes only a selector or name")
		}
		return schemas.RadioAction{Selector: selector}, nil

	case schemas.KindClick:
		if a.Selector == "" {
			return nil, malformed(path+".selector", "required")
		}
		return schemas.ClickAction{Selector: a.Selector}, nil

	case schemas.KindWait:
		if a.Duration == nil {
			return nil, malformed(path+".duration", "required")
		}
		if *a.Duration < 0 {
			return nil, malformed(path+".duration", "must not be negative")
		}
		if *a.Duration > maxWaitMillis {
			return nil, malformed(path+".duration", "too large")
		}
		return schemas.WaitAction{Duration: time.Duration(*a.Duration) * time.Millisecond}, nil

	case schemas.KindEnsure:
		return convertEnsure(path, a.Location, a.LocationRegexp)

	case schemas.KindScreenshot:
		if strings.TrimSpace(a.Name) == "" {
			return nil, malformed(path+".name", "required")
		}
		return schemas.ScreenshotAction{Name: a.Name}, nil

	case "":
		return nil, malformed(path+".type", "required")
	}
	return nil, &schemas.MalformedScenarioError{Field: path + ".type", Err: &schemas.UnknownActionError{Kind: a.Type}}
}

func convertEnsure(path string, location, pattern *string) (schemas.EnsureAction, error) {
	if pattern != nil {
		if _, err := regexp.Compile(*pattern); err != nil {
			return schemas.EnsureAction{}, &schemas.MalformedScenarioError{Field: path + ".location_regexp", Reason: "invalid pattern", Err: err}
		}
	}
	return schemas.EnsureAction{Location: location, LocationRegexp: pattern}, nil
}

// disallowed rejects fields that belong to a different action type.
func disallowed(path string, a *actionDoc) error {
	kind := schemas.ActionKind(a.Type)
	checks := []struct {
		field   string
		present bool
		allowed []schemas.ActionKind
	}{
		{"form", a.Form != nil, []schemas.ActionKind{schemas.KindInput, schemas.KindSelect, schemas.KindRadio}},
		{"selector", a.Selector != "", []schemas.ActionKind{schemas.KindClick}},
		{"duration", a.Duration != nil, []schemas.ActionKind{schemas.KindWait}},
		{"location", a.Location != nil, []schemas.ActionKind{schemas.KindEnsure}},
		{"location_regexp", a.LocationRegexp != nil, []schemas.ActionKind{schemas.KindEnsure}},
		{"name", a.Name != "", []schemas.ActionKind{schemas.KindScreenshot}},
	}
	for _, c := range checks {
		if !c.present || !isKnown(kind) {
			continue
		}
		if !containsKind(c.allowed, kind) {
			return malformed(path+"."+c.field, fmt.Sprintf("not allowed for %s action", kind))
		}
	}
	return nil
}

// formSelector resolves form.selector, or builds one from form.name.
func formSelector(path string, kind schemas.ActionKind, form *formDoc) (string, error) {
	if form == nil {
		return "", malformed(path+".form", "required")
	}
	switch {
	case form.Selector != "" && form.Name != "":
		return "", malformed(path+".form", "selector and name are mutually exclusive")
	case form.Selector != "":
		return form.Selector, nil
	case form.Name != "":
		return SelectorForName(kind, form.Name), nil
	}
	return "", malformed(path+".form.selector", "required")
}

// SelectorForName builds the CSS selector for a form control addressed by its name
// attribute.
func SelectorForName(kind schemas.ActionKind, name string) string {
	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	switch kind {
	case schemas.KindSelect:
		return fmt.Sprintf(`select[name="%s"]`, quoted)
	case schemas.KindRadio:
		return fmt.Sprintf(`input[type="radio"][name="%s"]`, quoted)
	}
	return fmt.Sprintf(`input[name="%s"]`, quoted)
}

func isKnown(kind schemas.ActionKind) bool {
	return containsKind(schemas.ActionKinds, kind)
}

func containsKind(kinds []schemas.ActionKind, kind schemas.ActionKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func malformed(field, reason string) error {
	return &schemas.MalformedScenarioError{Field: field, Reason: reason}
}
