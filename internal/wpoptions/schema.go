// Package wpoptions reads and writes rows of the WordPress options table.
package wpoptions

import (
	"fmt"
	"regexp"
)

// Keys managed by StaticPress2019.
const (
	KeyStaticURL = "StaticPress::static url"
	KeyStaticDir = "StaticPress::static dir"
	KeyTimeout   = "StaticPress::timeout"
)

// ManagedKeys are the rows the harness seeds, cleans and verifies.
func ManagedKeys() []string {
	return []string{KeyStaticURL, KeyStaticDir, KeyTimeout}
}

var identifier = regexp.MustCompile(`^[A-Za-z0-9_$]{1,64}$`)

// Schema names the options table and its columns. The names end up in SQL
// text, so Validate must pass before a Store uses them.
type Schema struct {
	TablePrefix    string `mapstructure:"table_prefix" yaml:"table_prefix"`
	Table          string `mapstructure:"table" yaml:"table"`
	IDColumn       string `mapstructure:"id_column" yaml:"id_column"`
	NameColumn     string `mapstructure:"name_column" yaml:"name_column"`
	ValueColumn    string `mapstructure:"value_column" yaml:"value_column"`
	AutoloadColumn string `mapstructure:"autoload_column" yaml:"autoload_column"`
}

func DefaultSchema() Schema {
	return Schema{
		TablePrefix:    "wp_",
		Table:          "options",
		IDColumn:       "option_id",
		NameColumn:     "option_name",
		ValueColumn:    "option_value",
		AutoloadColumn: "autoload",
	}
}

// TableName is the prefixed table name.
func (s Schema) TableName() string { return s.TablePrefix + s.Table }

func (s Schema) Validate() error {
	for _, f := range []struct{ what, name string }{
		{"table", s.TableName()},
		{"id column", s.IDColumn},
		{"name column", s.NameColumn},
		{"value column", s.ValueColumn},
		{"autoload column", s.AutoloadColumn},
	} {
		if !identifier.MatchString(f.name) {
			return fmt.Errorf("invalid %s name %q", f.what, f.name)
		}
	}
	return nil
}
