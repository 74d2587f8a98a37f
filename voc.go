package yolo2voc

// PASCAL VOC specific functionality.

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/sensorable/yolo2voc/internal/logger"
)

// Constant VOC header and object values.
const (
	DefaultRootElement = "annotations"
	UnknownDatabase    = "Unknown"
	UnspecifiedPose    = "Unspecified"
	ImageDepth         = 3
)

// VOCBndBox is an absolute pixel bounding box.
type VOCBndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// VOCObject is a single object annotation within a VOC file.
type VOCObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated int       `xml:"truncated"`
	Difficult int       `xml:"difficult"`
	BndBox    VOCBndBox `xml:"bndbox"`
}

// VOCSource names the dataset an image comes from.
type VOCSource struct {
	Database string `xml:"database"`
}

// VOCSize is the image size.
type VOCSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// VOCDocument defines the VOC annotation structure for a single image.
//
// The root element is named after XMLName, so that both the "annotations" root and the canonical
// VOC "annotation" root can be written. Any root name is accepted when reading.
type VOCDocument struct {
	XMLName   xml.Name
	Folder    string      `xml:"folder"`
	Filename  string      `xml:"filename"`
	Path      string      `xml:"path"`
	Source    VOCSource   `xml:"source"`
	Size      VOCSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []VOCObject `xml:"object"`
}

// NewVOCDocument returns a document with all header fields populated and no objects.
func NewVOCDocument(path, filename, folder string, width, height int) *VOCDocument {
	return &VOCDocument{
		XMLName:  xml.Name{Local: DefaultRootElement},
		Folder:   folder,
		Filename: filename,
		Path:     path,
		Source:   VOCSource{Database: UnknownDatabase},
		Size:     VOCSize{Width: width, Height: height, Depth: ImageDepth},
		Objects:  []VOCObject{},
	}
}

// AppendObjects appends objs, in order.
func (d *VOCDocument) AppendObjects(objs ...VOCObject) {
	d.Objects = append(d.Objects, objs...)
}

// Encode writes the document as indented XML, preceded by the XML declaration.
func (d *VOCDocument) Encode(w io.Writer) error {
	enc, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// vocObject rounds the coordinates of a to whole pixels. Halves are rounded away from zero.
func vocObject(a Annotation) VOCObject {
	return VOCObject{
		Name: a.Label,
		Pose: UnspecifiedPose,
		BndBox: VOCBndBox{
			XMin: int(math.Round(a.Coords[0])),
			YMin: int(math.Round(a.Coords[1])),
			XMax: int(math.Round(a.Coords[2])),
			YMax: int(math.Round(a.Coords[3])),
		},
	}
}

// VOCOptions configures the VOC output.
type VOCOptions struct {
	RootElement   string // The root element name; DefaultRootElement if empty.
	PathSeparator rune   // The separator for the folder and filename fields; 0 for the host's.
}

// ToVOC converts the intermediate representation for a single image to VOC format.
func ToVOC(f AnnotatedFile, opts VOCOptions) (*VOCDocument, error) {
	filename, folder, err := SplitImagePath(f.FilePath, opts.PathSeparator)
	if err != nil {
		return nil, err
	}

	doc := NewVOCDocument(f.FilePath, filename, folder, f.Width, f.Height)
	if opts.RootElement != "" {
		doc.XMLName.Local = opts.RootElement
	}

	objs := make([]VOCObject, len(f.Annotations))
	for i, a := range f.Annotations {
		objs[i] = vocObject(a)
	}
	doc.AppendObjects(objs...)

	return doc, nil
}

// WriteVOC writes one <stem>.xml file per element of data to dirPath, stem being the base name
// of the source image without extension. dirPath is created if needed; other files in it are
// left alone.
//
// Per image errors are recorded in report and do not stop the remaining images. Without a
// report they are joined and returned instead.
func WriteVOC(dirPath string, data AnnotatedFiles, opts VOCOptions, report *Report) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", dirPath, err)
	}

	var errs []error
	fail := func(f AnnotatedFile, err error) {
		logger.S().Warnw("Failed to write VOC annotation", "image", f.SourcePath, "error", err)
		if report != nil {
			report.fail(f, err)
		} else {
			errs = append(errs, err)
		}
	}

	written := make(map[string]string, len(data))
	for _, f := range data {
		source := f.SourcePath
		if source == "" {
			source = f.FilePath
		}
		outPath := filepath.Join(dirPath, stem(source)+".xml")
		if prev, ok := written[outPath]; ok {
			fail(f, fmt.Errorf("%q would overwrite the annotation of %q", outPath, prev))
			continue
		}

		doc, err := ToVOC(f, opts)
		if err != nil {
			fail(f, err)
			continue
		}
		if err := writeVOCFile(outPath, doc); err != nil {
			fail(f, err)
			continue
		}
		written[outPath] = source

		if report != nil {
			if res, ok := report.Lookup(source); ok {
				res.OutPath = outPath
				res.Objects = len(doc.Objects)
			}
		}
		logger.S().Debugw("Saved VOC annotation", "path", outPath, "objects", len(doc.Objects))
	}

	return errors.Join(errs...)
}

func writeVOCFile(path string, doc *VOCDocument) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	return doc.Encode(file)
}

// ReadVOC reads and parses the VOC file at path.
func ReadVOC(path string) (*VOCDocument, error) {
	enc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var doc VOCDocument
	if err := xml.Unmarshal(enc, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse VOC input from %q: %w", path, err)
	}
	return &doc, nil
}
