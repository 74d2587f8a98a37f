package yolo2voc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassMap(t *testing.T) {
	c := DefaultClassMap()
	for index, name := range map[string]string{
		"0": "person", "1": "bicycle", "2": "car", "3": "motorcycle", "5": "bus", "7": "truck",
	} {
		got, ok := c.Name(index)
		assert.True(t, ok, index)
		assert.Equal(t, name, got)
	}
	for _, index := range []string{"4", "6", "8", "99", "02", ""} {
		_, ok := c.Name(index)
		assert.False(t, ok, index)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "5", "7"}, c.Indices())
}

func TestNewClassMapCopies(t *testing.T) {
	names := map[string]string{"0": "cat"}
	c := NewClassMap(names)
	names["0"] = "dog"

	got, _ := c.Name("0")
	assert.Equal(t, "cat", got)
}

func TestClassMapIndicesOrder(t *testing.T) {
	c := NewClassMap(map[string]string{"10": "j", "2": "b", "x": "?", "a": "!"})
	assert.Equal(t, []string{"2", "10", "a", "x"}, c.Indices())
}

func TestLoadClassMap(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file    string
		content string
		want    map[string]string
	}{
		{"plain.yaml", "0: cat\n1: dog\n4: bird\n",
			map[string]string{"0": "cat", "1": "dog", "4": "bird"}},
		{"dataset.yml", "path: ../datasets\ntrain: images/train\nnames:\n  - cat\n  - dog\n",
			map[string]string{"0": "cat", "1": "dog"}},
		{"dataset-map.yaml", "nc: 2\nnames:\n  0: cat\n  3: traffic light\n",
			map[string]string{"0": "cat", "3": "traffic light"}},
		{"list.yaml", "[cat, dog]\n", map[string]string{"0": "cat", "1": "dog"}},
		{"classes.txt", "cat\n\ndog\r\nbird\n", map[string]string{"0": "cat", "1": "dog", "2": "bird"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)

			c, err := LoadClassMap(path)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), c.Len())
			for index, name := range tt.want {
				got, ok := c.Name(index)
				assert.True(t, ok, index)
				assert.Equal(t, name, got)
			}
		})
	}
}

func TestLoadClassMapErrors(t *testing.T) {
	dir := t.TempDir()
	for file, content := range map[string]string{
		"empty.yaml":  "",
		"scalar.yaml": "cat\n",
		"broken.yaml": "0: [cat\n",
		"empty.txt":   "\n\n",
	} {
		path := filepath.Join(dir, file)
		writeFile(t, path, content)
		_, err := LoadClassMap(path)
		assert.Error(t, err, file)
	}

	_, err := LoadClassMap(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
