package yolo2voc

// YOLO specific functionality.

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sensorable/yolo2voc/internal/logger"
)

// YOLOAnnotation is a single annotation within a YOLO file. The coordinates are normalised
// ratios of the image size.
type YOLOAnnotation struct {
	ClassIndex string
	CenterX    float64
	CenterY    float64
	Width      float64
	Height     float64
}

// Corners returns the absolute x1, y1, x2, y2 coordinates of the box in an image of the given
// size.
func (a YOLOAnnotation) Corners(width, height int) [4]float64 {
	bboxWidth := a.Width * float64(width)
	bboxHeight := a.Height * float64(height)
	centerX := a.CenterX * float64(width)
	centerY := a.CenterY * float64(height)
	return [4]float64{
		centerX - bboxWidth/2,
		centerY - bboxHeight/2,
		centerX + bboxWidth/2,
		centerY + bboxHeight/2,
	}
}

// ParseYOLOLine parses the line of values for a single annotation: a non-negative integer class
// index, center x, center y, width and height. Errors are of type *MalformedLineError.
func ParseYOLOLine(line string) (YOLOAnnotation, error) {
	a := YOLOAnnotation{}

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return a, &MalformedLineError{Text: line,
			Err: fmt.Errorf("expected 5 tokens, found %d", len(tokens))}
	}

	// The class index is kept as written; it is the class map key.
	if _, err := strconv.ParseUint(tokens[0], 10, 0); err != nil {
		return a, &MalformedLineError{Text: line, Err: fmt.Errorf("invalid class index: %w", err)}
	}
	a.ClassIndex = tokens[0]
	values := [4]*float64{&a.CenterX, &a.CenterY, &a.Width, &a.Height}
	for i, v := range values {
		f, err := strconv.ParseFloat(tokens[i+1], 64)
		if err != nil {
			return a, &MalformedLineError{Text: line, Err: err}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return a, &MalformedLineError{Text: line,
				Err: fmt.Errorf("value %q is not a finite number", tokens[i+1])}
		}
		*v = f
	}

	return a, nil
}

// annotationFromYOLO denormalises a to the intermediate representation, resolving its class
// name through classes. An unknown class index yields a *ClassMappingError, unless
// allowUnmapped is set, in which case the label is empty.
func annotationFromYOLO(a YOLOAnnotation, width, height int, classes ClassMap,
	allowUnmapped bool) (Annotation, error) {

	name, ok := classes.Name(a.ClassIndex)
	if !ok && !allowUnmapped {
		return Annotation{}, &ClassMappingError{ClassIndex: a.ClassIndex}
	}
	return Annotation{
		Attributes: map[string]interface{}{ClassIndex: a.ClassIndex},
		Coords:     a.Corners(width, height),
		Label:      name,
	}, nil
}

// ConvertYOLOLine parses line and converts it to a VOC object for an image of the given size.
func ConvertYOLOLine(line string, width, height int, classes ClassMap,
	allowUnmapped bool) (VOCObject, error) {

	y, err := ParseYOLOLine(line)
	if err != nil {
		return VOCObject{}, err
	}
	a, err := annotationFromYOLO(y, width, height, classes, allowUnmapped)
	if err != nil {
		return VOCObject{}, err
	}
	return vocObject(a), nil
}

// YOLOOptions configures FromYOLO.
type YOLOOptions struct {
	Classes              ClassMap // The class index lookup.
	AllowUnmappedClasses bool     // Keep objects with unknown class indices, with empty names.
	StrictLines          bool     // Fail a whole file if any of its lines is bad.
	AutoOrient           bool     // Use the EXIF oriented image size.
}

// parseYOLOFile reads the annotations of labelPath for an image of the given size.
//
// Blank lines are ignored. Lines that fail to convert are skipped and returned in skipped, unless
// strict is set, in which case all line errors are joined and returned as err.
func parseYOLOFile(labelPath string, width, height int, opts YOLOOptions) (
	annotations []Annotation, skipped []error, err error) {

	lines, err := readLines(labelPath)
	if err != nil {
		return nil, nil, err
	}

	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], "\ufeff") // UTF-8 byte order mark
	}

	annotations = make([]Annotation, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		y, err := ParseYOLOLine(line)
		if err == nil {
			var a Annotation
			a, err = annotationFromYOLO(y, width, height, opts.Classes, opts.AllowUnmappedClasses)
			if err == nil {
				a.Attributes[SourceLine] = i + 1
				annotations = append(annotations, a)
				continue
			}
		}
		skipped = append(skipped, setLine(err, labelPath, i+1))
	}

	if opts.StrictLines && len(skipped) > 0 {
		return nil, nil, errors.Join(skipped...)
	}
	return annotations, skipped, nil
}

// FromYOLO pairs every image in imageDir with the same-stem .txt file in labelDir, reads the
// image size and parses the YOLO annotations. Hidden files and .txt files in imageDir are not
// considered images.
//
// Failures are per image: they are recorded in the returned Report and the remaining images are
// still processed. The returned error is only set if a directory cannot be read.
func FromYOLO(labelDir, imageDir string, opts YOLOOptions) (AnnotatedFiles, *Report, error) {
	imageFiles, err := filesByExtInDir(imageDir, "")
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(labelDir); err != nil {
		return nil, nil, fmt.Errorf("cannot read directory %q: %w", labelDir, err)
	}
	logger.S().Infof("Parsing YOLO labels for %d images", len(imageFiles))

	report := newReport()
	data := make(AnnotatedFiles, 0, len(imageFiles))
	for _, imagePath := range imageFiles {
		// Label files may share the image directory; hidden files are never images.
		if base := filepath.Base(imagePath); strings.HasPrefix(base, ".") ||
			strings.EqualFold(filepath.Ext(base), ".txt") {
			continue
		}
		labelPath := filepath.Join(labelDir, stem(imagePath)+".txt")
		res := report.add(imagePath, labelPath)

		if info, err := os.Stat(labelPath); err != nil || info.IsDir() {
			res.Err = &AnnotationNotFoundError{ImagePath: imagePath, LabelPath: labelPath}
			logger.S().Warnw("Skipping image", "image", imagePath, "error", res.Err)
			continue
		}

		width, height, err := imageSize(imagePath, opts.AutoOrient)
		if err != nil {
			res.Err = err
			logger.S().Warnw("Skipping image", "image", imagePath, "error", err)
			continue
		}

		annotations, skipped, err := parseYOLOFile(labelPath, width, height, opts)
		res.Skipped = skipped
		if err != nil {
			res.Err = err
			logger.S().Warnw("Skipping image", "image", imagePath, "error", err)
			continue
		}
		for _, e := range skipped {
			logger.S().Warnw("Skipping line", "label", labelPath, "error", e)
		}

		data = append(data, AnnotatedFile{
			Annotations: annotations,
			FilePath:    imagePath,
			SourcePath:  imagePath,
			LabelPath:   labelPath,
			Width:       width,
			Height:      height,
		})
	}

	return data, report, nil
}
