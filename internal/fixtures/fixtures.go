// Package fixtures seeds and cleans the options rows the scenario depends on.
package fixtures

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/staticpress2019/e2e/internal/wpoptions"
)

//go:embed data/schema.json data/staticpress2019.yaml
var data embed.FS

const defaultFixture = "data/staticpress2019.yaml"

// Document is one fixture file: a set of named option rows.
type Document struct {
	Source string
	Entity string
	Items  []Item
}

// Item is a named row, in file order.
type Item struct {
	Key    string
	Option wpoptions.Option
}

// Options returns the rows of every item.
func (d *Document) Options() []wpoptions.Option {
	out := make([]wpoptions.Option, 0, len(d.Items))
	for _, it := range d.Items {
		out = append(out, it.Option)
	}
	return out
}

// ValidationError carries every schema violation found in a document.
type ValidationError struct {
	Source string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fixture %s is invalid: %s", e.Source, strings.Join(e.Issues, "; "))
}

// rawItem decodes optionValue from the scalar text, so unquoted numbers and
// booleans are stored exactly as written.
type rawItem struct {
	OptionName  string `yaml:"optionName"`
	OptionValue string `yaml:"optionValue"`
	Autoload    string `yaml:"autoload"`
}

type rawDocument struct {
	Entity string    `yaml:"entity"`
	Items  yaml.Node `yaml:"items"`
}

// Parse validates data against the fixture schema and decodes it.
func Parse(source string, data []byte) (*Document, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", source, err)
	}
	if err := validate(source, generic); err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", source, err)
	}
	doc := &Document{Source: source, Entity: raw.Entity}
	for i := 0; i+1 < len(raw.Items.Content); i += 2 {
		var it rawItem
		if err := raw.Items.Content[i+1].Decode(&it); err != nil {
			return nil, fmt.Errorf("fixture %s item %q: %w", source, raw.Items.Content[i].Value, err)
		}
		autoload := it.Autoload
		if autoload == "" {
			autoload = "yes"
		}
		doc.Items = append(doc.Items, Item{
			Key:    raw.Items.Content[i].Value,
			Option: wpoptions.Option{Name: it.OptionName, Value: it.OptionValue, Autoload: autoload},
		})
	}
	return doc, nil
}

func validate(source string, doc any) error {
	schema, err := data.ReadFile("data/schema.json")
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate fixture %s: %w", source, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Source: source}
	for _, e := range result.Errors() {
		verr.Issues = append(verr.Issues, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return verr
}

// Default is the embedded StaticPress2019 fixture.
func Default() (*Document, error) {
	raw, err := data.ReadFile(defaultFixture)
	if err != nil {
		return nil, err
	}
	return Parse("embedded:"+filepath.Base(defaultFixture), raw)
}

// Read loads the fixture at path, or every *.yml/*.yaml file directly
// inside it when path is a directory, in name order. An empty path yields
// the embedded default.
func Read(path string) ([]*Document, error) {
	if path == "" {
		doc, err := Default()
		if err != nil {
			return nil, err
		}
		return []*Document{doc}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("fixture path: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read fixture directory: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yml" || ext == ".yaml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, errors.New("no fixture files in " + path)
		}
	}

	docs := make([]*Document, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		doc, err := Parse(f, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
