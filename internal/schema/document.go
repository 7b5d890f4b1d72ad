package schema

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Substitute replaces every {{ NAME }} placeholder in doc with vars[NAME].
// Placeholders without a value are reported together as a ValidationError.
func Substitute(doc []byte, vars map[string]string) ([]byte, error) {
	missing := map[string]struct{}{}
	out := placeholderPattern.ReplaceAllFunc(doc, func(match []byte) []byte {
		name := string(placeholderPattern.FindSubmatch(match)[1])
		value, ok := vars[name]
		if !ok {
			missing[name] = struct{}{}
			return match
		}
		return []byte(value)
	})
	if len(missing) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	issues := make([]FieldIssue, len(names))
	for i, name := range names {
		issues[i] = FieldIssue{Path: "{{ " + name + " }}", Message: "placeholder has no value"}
	}
	return nil, &ValidationError{Document: "document", Issues: issues}
}

// ParseDocument unmarshals YAML into a generic map. An empty document yields an empty map.
func ParseDocument(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// ReadDocument reads a YAML file, substitutes placeholders from vars and parses it.
func ReadDocument(path string, vars map[string]string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if vars != nil {
		data, err = Substitute(data, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	raw, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw, nil
}

func decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "yaml",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
