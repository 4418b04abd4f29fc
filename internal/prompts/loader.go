// Package prompts holds the stage prompt templates. Templates live in JSON
// files embedded at compile time and use {{.Name}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ContentFile holds the templates used by the content stages.
const ContentFile = "content.json"

//go:embed *.json
var promptFiles embed.FS

var placeholderRe = regexp.MustCompile(`\{\{\.([A-Za-z]+)\}\}`)

// Template is one named prompt.
type Template struct {
	Key  string
	Body string
}

// Placeholders returns the distinct placeholder names in order of first use.
func (t Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Fill substitutes every placeholder in a single pass, so values that look
// like placeholders are inserted verbatim. A placeholder without a value is
// an error naming all of them.
func (t Template) Fill(data map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(t.Body, func(ph string) string {
		name := placeholderRe.FindStringSubmatch(ph)[1]
		value, ok := data[name]
		if !ok {
			missing = append(missing, name)
			return ph
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s has unfilled placeholders: %s", t.Key, strings.Join(missing, ", "))
	}
	return out, nil
}

// parsed files, keyed by file name
var (
	cache   = make(map[string]map[string]Template)
	cacheMu sync.Mutex
)

// Load reads and caches every template in an embedded file.
func Load(filename string) (map[string]Template, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if set, ok := cache[filename]; ok {
		return set, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	set := make(map[string]Template, len(raw))
	for key, body := range raw {
		if strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("prompt %s/%s is empty", filename, key)
		}
		set[key] = Template{Key: key, Body: body}
	}
	cache[filename] = set
	return set, nil
}

// Get returns one template.
func Get(filename, key string) (Template, error) {
	set, err := Load(filename)
	if err != nil {
		return Template{}, err
	}
	t, ok := set[key]
	if !ok {
		return Template{}, fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return t, nil
}

// Render loads a template and fills it.
func Render(filename, key string, data map[string]string) (string, error) {
	t, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	return t.Fill(data)
}

// Keys lists the template keys in a file, sorted.
func Keys(filename string) ([]string, error) {
	set, err := Load(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearCache drops parsed files. Tests use it.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]Template)
	cacheMu.Unlock()
}
