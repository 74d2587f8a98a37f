package yolo2voc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteImageSets(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ImageSets", "Main")
	file := func(path string) AnnotatedFile {
		return AnnotatedFile{FilePath: filepath.Join("out", "resized.jpg"), SourcePath: path}
	}
	datasets := []AnnotatedFiles{
		{file(filepath.Join("/data", "img1.jpg")), file(filepath.Join("/data", "img2.png"))},
		{},
	}

	require.NoError(t, WriteImageSets(dir, []string{"train", "val"}, datasets))

	content, err := os.ReadFile(filepath.Join(dir, "train.txt"))
	require.NoError(t, err)
	assert.Equal(t, "img1\nimg2\n", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "val.txt"))
	require.NoError(t, err)
	assert.Empty(t, content)

	assert.Error(t, WriteImageSets(dir, []string{"train"}, datasets))
}
