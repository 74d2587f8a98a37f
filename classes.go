package yolo2voc

// Class index to class name lookup.

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClassMap maps YOLO class index tokens to class names. The zero value maps nothing.
//
// A ClassMap is never modified after construction and is safe for concurrent use.
type ClassMap struct {
	names map[string]string
}

// NewClassMap copies names into a new ClassMap.
func NewClassMap(names map[string]string) ClassMap {
	m := make(map[string]string, len(names))
	for k, v := range names {
		m[k] = v
	}
	return ClassMap{names: m}
}

// ClassMapFromList maps the list position of each name to that name.
func ClassMapFromList(names []string) ClassMap {
	m := make(map[string]string, len(names))
	for i, v := range names {
		m[strconv.Itoa(i)] = v
	}
	return ClassMap{names: m}
}

// DefaultClassMap is the vehicle and person subset of the COCO classes.
func DefaultClassMap() ClassMap {
	return NewClassMap(map[string]string{
		"0": "person",
		"1": "bicycle",
		"2": "car",
		"3": "motorcycle",
		"5": "bus",
		"7": "truck",
	})
}

// Name returns the class name for the index token.
func (c ClassMap) Name(index string) (string, bool) {
	name, ok := c.names[index]
	return name, ok
}

// Len is the number of mapped classes.
func (c ClassMap) Len() int {
	return len(c.names)
}

// Indices returns the mapped index tokens, numeric ones first in numeric order.
func (c ClassMap) Indices() []string {
	keys := make([]string, 0, len(c.names))
	for k := range c.names {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// LoadClassMap reads a class map from path.
//
// Files ending in .yaml or .yml hold either a plain index: name mapping or a dataset file
// with a "names" key, whose value is a list or an index: name mapping. Any other file is read
// as one class name per line, the first line being index 0.
func LoadClassMap(path string) (ClassMap, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc, err := readFile(path)
		if err != nil {
			return ClassMap{}, err
		}
		return parseClassMapYAML(enc)
	}

	lines, err := readLines(path)
	if err != nil {
		return ClassMap{}, err
	}
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			names = append(names, l)
		}
	}
	if len(names) == 0 {
		return ClassMap{}, fmt.Errorf("no class names in %q", path)
	}
	return ClassMapFromList(names), nil
}

func parseClassMapYAML(enc []byte) (ClassMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(enc, &doc); err != nil {
		return ClassMap{}, fmt.Errorf("failed to parse class map: %w", err)
	}
	if len(doc.Content) == 0 {
		return ClassMap{}, fmt.Errorf("empty class map")
	}
	root := doc.Content[0]

	// Dataset files keep the classes under "names".
	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "names" {
				root = root.Content[i+1]
				break
			}
		}
	}

	switch root.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := root.Decode(&names); err != nil {
			return ClassMap{}, fmt.Errorf("invalid class name list: %w", err)
		}
		return ClassMapFromList(names), nil
	case yaml.MappingNode:
		var names map[string]string
		if err := root.Decode(&names); err != nil {
			return ClassMap{}, fmt.Errorf("invalid class mapping: %w", err)
		}
		if len(names) == 0 {
			return ClassMap{}, fmt.Errorf("empty class map")
		}
		return NewClassMap(names), nil
	}
	return ClassMap{}, fmt.Errorf("class map must be a list or a mapping")
}
