package yolo2voc

// VOC ImageSets list files.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WriteImageSets writes one <name>.txt file per dataset to dirPath, listing the image stems of
// the dataset one per line, as in the ImageSets/Main directory of a VOC dataset.
func WriteImageSets(dirPath string, names []string, datasets []AnnotatedFiles) error {
	if len(names) != len(datasets) {
		return fmt.Errorf("got %d set names for %d datasets", len(names), len(datasets))
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", dirPath, err)
	}

	for i, data := range datasets {
		stems := make([]string, len(data))
		for j, f := range data {
			stems[j] = stem(f.SourcePath)
		}
		if err := saveLines(stems, filepath.Join(dirPath, names[i]+".txt")); err != nil {
			return err
		}
	}
	return nil
}

func saveLines(lines []string, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	buf := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(buf, line); err != nil {
			return err
		}
	}
	return buf.Flush()
}
