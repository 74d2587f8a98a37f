package yolo2voc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// filesByExtInDir returns all regular files with file extension ext found directly in directory
// dirPath, sorted by name. All files are returned if ext is empty.
func filesByExtInDir(dirPath, ext string) ([]string, error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("cannot read directory %q: not a directory", dirPath)
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %w", dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		// Must be a regular file or a symlink and have the requested extension.
		mode := e.Type()
		if (!mode.IsRegular() && mode&os.ModeSymlink == 0) || !strings.HasSuffix(name, ext) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}

	return files, nil
}

// stem is the base name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SplitImagePath returns the file name and the name of the immediate parent folder of path.
//
// A zero sep uses the host's path conventions. Any other sep splits on exactly that rune, which
// allows Windows style paths to be decomposed on other platforms and vice versa. No filesystem
// access takes place.
func SplitImagePath(path string, sep rune) (filename, folder string, err error) {
	var segments []string
	if sep == 0 {
		for p := filepath.Clean(path); ; {
			dir, file := filepath.Split(p)
			if file != "" {
				segments = append([]string{file}, segments...)
			}
			dir = strings.TrimRight(dir, string(os.PathSeparator))
			if dir == "" || dir == p || len(segments) == 2 {
				break
			}
			p = dir
		}
	} else {
		for _, s := range strings.Split(path, string(sep)) {
			if s != "" {
				segments = append(segments, s)
			}
		}
	}
	if len(segments) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrDegeneratePath, path)
	}
	n := len(segments)
	return segments[n-1], segments[n-2], nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %w", path, err)
	}

	return lines, nil
}

// readFile reads the whole file at path.
func readFile(path string) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	return io.ReadAll(f)
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
