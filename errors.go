package yolo2voc

import (
	"errors"
	"fmt"
)

// ErrDegeneratePath is returned by SplitImagePath for paths without a parent folder segment.
var ErrDegeneratePath = errors.New("path needs at least a folder and a file name")

// ImageReadError reports an image that is missing, unreadable or in an unsupported format.
type ImageReadError struct {
	Path string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("cannot read image %q: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// MalformedLineError reports a YOLO line that does not have exactly five tokens or whose
// coordinates are not finite numbers. Line is 1-based; it and Path are zero when the line was
// parsed on its own.
type MalformedLineError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *MalformedLineError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed YOLO line %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("%s:%d: malformed YOLO line %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *MalformedLineError) Unwrap() error { return e.Err }

// ClassMappingError reports a class index that has no entry in the ClassMap.
type ClassMappingError struct {
	Path       string
	Line       int
	ClassIndex string
}

func (e *ClassMappingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unknown class index %q", e.ClassIndex)
	}
	return fmt.Sprintf("%s:%d: unknown class index %q", e.Path, e.Line, e.ClassIndex)
}

// AnnotationNotFoundError reports an image without a same-stem .txt file in the label
// directory.
type AnnotationNotFoundError struct {
	ImagePath string
	LabelPath string
}

func (e *AnnotationNotFoundError) Error() string {
	return fmt.Sprintf("no annotation %q for image %q", e.LabelPath, e.ImagePath)
}

// setLine attaches file context to the line level errors produced by ConvertYOLOLine.
func setLine(err error, path string, line int) error {
	var me *MalformedLineError
	if errors.As(err, &me) {
		me.Path, me.Line = path, line
		return me
	}
	var ce *ClassMappingError
	if errors.As(err, &ce) {
		ce.Path, ce.Line = path, line
		return ce
	}
	return err
}
