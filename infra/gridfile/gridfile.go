// Package gridfile reads and writes column-oriented grid descriptions.
//
// A description maps relation names to tables and each table maps column
// names to equal-length number lists:
//
//	basic:
//	  baseMVA: [100]
//	  slack_idx: [1]
//	branch:
//	  fbus: [1, 2, 1]
//	  tbus: [2, 3, 3]
//	  ...
//
// YAML (.yaml, .yml) and JSON (.json) are accepted on input. Output is
// written as YAML with flow-style columns, or JSON for a .json path.
package gridfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/xuwkk/power-system-operation/core/grid"
)

func parser(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	default:
		return nil, fmt.Errorf("gridfile: unsupported format %q", filepath.Ext(path))
	}
}

// Load reads the grid description at path.
func Load(path string) (grid.Tables, error) {
	p, err := parser(path)
	if err != nil {
		return nil, err
	}
	k := koanf.New("/")
	if err := k.Load(file.Provider(path), p); err != nil {
		return nil, fmt.Errorf("gridfile: read %s: %w", path, err)
	}
	var ts grid.Tables
	if err := k.UnmarshalWithConf("", &ts, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("gridfile: decode %s: %w", path, err)
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("gridfile: %s holds no relations", path)
	}
	return ts, nil
}

// LoadModel reads the grid description at path and builds the model.
func LoadModel(path string) (*grid.Model, error) {
	ts, err := Load(path)
	if err != nil {
		return nil, err
	}
	m, err := grid.New(ts)
	if err != nil {
		return nil, fmt.Errorf("gridfile: %s: %w", path, err)
	}
	return m, nil
}

// Save writes ts to path, creating or truncating it.
func Save(path string, ts grid.Tables) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(ts, "", "  ")
	case ".yaml", ".yml":
		data, err = Marshal(ts)
	default:
		return fmt.Errorf("gridfile: unsupported format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders ts as YAML. Relations and columns are sorted by name and
// every column is a single flow-style list.
func Marshal(ts grid.Tables) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, rel := range sortedKeys(ts) {
		table := &yaml.Node{Kind: yaml.MappingNode}
		for _, col := range ts[rel].Columns() {
			seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, v := range ts[rel][col] {
				seq.Content = append(seq.Content, &yaml.Node{
					Kind:  yaml.ScalarNode,
					Value: strconv.FormatFloat(v, 'g', -1, 64),
				})
			}
			table.Content = append(table.Content, scalar(col), seq)
		}
		root.Content = append(root.Content, scalar(rel), table)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

func sortedKeys(ts grid.Tables) []string {
	keys := make([]string, 0, len(ts))
	for k := range ts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteLimits saves a copy of m's description at path with the branch
// limits replaced by limitsMW.
func WriteLimits(path string, m *grid.Model, limitsMW []float64) error {
	ts, err := m.Tables().WithBranchLimits(limitsMW)
	if err != nil {
		return err
	}
	return Save(path, ts)
}
