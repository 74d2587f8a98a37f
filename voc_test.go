package yolo2voc

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVOCDocument(t *testing.T) {
	doc := NewVOCDocument("/data/images/img1.jpg", "img1.jpg", "images", 1200, 800)

	want := &VOCDocument{
		XMLName:  xml.Name{Local: "annotations"},
		Folder:   "images",
		Filename: "img1.jpg",
		Path:     "/data/images/img1.jpg",
		Source:   VOCSource{Database: "Unknown"},
		Size:     VOCSize{Width: 1200, Height: 800, Depth: 3},
		Objects:  []VOCObject{},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("NewVOCDocument() mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendObjectsKeepsOrder(t *testing.T) {
	doc := NewVOCDocument("/a/b.jpg", "b.jpg", "a", 10, 10)
	doc.AppendObjects(VOCObject{Name: "car"}, VOCObject{Name: "bus"})
	doc.AppendObjects(VOCObject{Name: "person"})
	doc.AppendObjects()

	names := make([]string, len(doc.Objects))
	for i, o := range doc.Objects {
		names[i] = o.Name
	}
	assert.Equal(t, []string{"car", "bus", "person"}, names)
}

func TestEncode(t *testing.T) {
	doc := NewVOCDocument("/data/images/img1.jpg", "img1.jpg", "images", 1200, 800)
	doc.AppendObjects(VOCObject{
		Name:   "car",
		Pose:   UnspecifiedPose,
		BndBox: VOCBndBox{XMin: 549, YMin: 251, XMax: 625, YMax: 335},
	})

	var buf bytes.Buffer
	require.NoError(t, doc.Encode(&buf))

	want := xml.Header + `<annotations>
  <folder>images</folder>
  <filename>img1.jpg</filename>
  <path>/data/images/img1.jpg</path>
  <source>
    <database>Unknown</database>
  </source>
  <size>
    <width>1200</width>
    <height>800</height>
    <depth>3</depth>
  </size>
  <segmented>0</segmented>
  <object>
    <name>car</name>
    <pose>Unspecified</pose>
    <truncated>0</truncated>
    <difficult>0</difficult>
    <bndbox>
      <xmin>549</xmin>
      <ymin>251</ymin>
      <xmax>625</xmax>
      <ymax>335</ymax>
    </bndbox>
  </object>
</annotations>
`
	assert.Equal(t, want, buf.String())
}

func TestEncodeWithoutObjects(t *testing.T) {
	doc := NewVOCDocument("/a/b.jpg", "b.jpg", "a", 10, 10)
	doc.XMLName.Local = "annotation"

	var buf bytes.Buffer
	require.NoError(t, doc.Encode(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, xml.Header+"<annotation>\n"))
	assert.True(t, strings.HasSuffix(out, "</annotation>\n"))
	assert.NotContains(t, out, "<object>")
}

func TestToVOC(t *testing.T) {
	f := AnnotatedFile{
		Annotations: []Annotation{
			{Coords: [4]float64{10.5, 20.4, 30.5, 40.6}, Label: "bus"},
			{Coords: [4]float64{0, 0, 1, 1}, Label: "car"},
		},
		FilePath: filepath.Join("data", "images", "img1.jpg"),
		Width:    640,
		Height:   480,
	}

	doc, err := ToVOC(f, VOCOptions{})
	require.NoError(t, err)
	assert.Equal(t, "annotations", doc.XMLName.Local)
	assert.Equal(t, "images", doc.Folder)
	assert.Equal(t, "img1.jpg", doc.Filename)
	assert.Equal(t, f.FilePath, doc.Path)
	assert.Equal(t, VOCSize{Width: 640, Height: 480, Depth: 3}, doc.Size)
	require.Len(t, doc.Objects, 2)
	assert.Equal(t, VOCObject{Name: "bus", Pose: "Unspecified",
		BndBox: VOCBndBox{XMin: 11, YMin: 20, XMax: 31, YMax: 41}}, doc.Objects[0])
	assert.Equal(t, "car", doc.Objects[1].Name)

	f.FilePath = `C:\datasets\train\img1.jpg`
	doc, err = ToVOC(f, VOCOptions{RootElement: "annotation", PathSeparator: '\\'})
	require.NoError(t, err)
	assert.Equal(t, "annotation", doc.XMLName.Local)
	assert.Equal(t, "train", doc.Folder)
	assert.Equal(t, "img1.jpg", doc.Filename)

	f.FilePath = "img1.jpg"
	_, err = ToVOC(f, VOCOptions{})
	require.ErrorIs(t, err, ErrDegeneratePath)
}

func TestWriteVOCRoundTrip(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	imagePath := filepath.Join("/data", "images", "img1.png")
	data := AnnotatedFiles{{
		Annotations: []Annotation{{Coords: [4]float64{250, 250, 750, 750}, Label: "person"}},
		FilePath:    imagePath,
		SourcePath:  imagePath,
		Width:       1000,
		Height:      1000,
	}}

	report := newReport()
	report.add(imagePath, "")
	require.NoError(t, WriteVOC(outDir, data, VOCOptions{}, report))

	outPath := filepath.Join(outDir, "img1.xml")
	res, _ := report.Lookup(imagePath)
	assert.Equal(t, outPath, res.OutPath)
	assert.Equal(t, 1, res.Objects)

	doc, err := ReadVOC(outPath)
	require.NoError(t, err)
	require.Len(t, doc.Objects, 1)
	assert.Equal(t, "person", doc.Objects[0].Name)
	assert.Equal(t, VOCBndBox{XMin: 250, YMin: 250, XMax: 750, YMax: 750}, doc.Objects[0].BndBox)
	assert.Equal(t, "annotations", doc.XMLName.Local)
	assert.Equal(t, "images", doc.Folder)
}

func TestWriteVOCLeavesOtherFiles(t *testing.T) {
	outDir := t.TempDir()
	other := filepath.Join(outDir, "notes.xml")
	writeFile(t, other, "keep me")

	dup1 := filepath.Join("/data", "images", "x.jpg")
	dup2 := filepath.Join("/data", "images", "x.png")
	data := AnnotatedFiles{
		{FilePath: dup1, SourcePath: dup1, Width: 1, Height: 1},
		{FilePath: dup2, SourcePath: dup2, Width: 1, Height: 1},
	}

	report := newReport()
	report.add(dup1, "")
	report.add(dup2, "")
	require.NoError(t, WriteVOC(outDir, data, VOCOptions{}, report))

	content, err := os.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(content))

	// The second image with the same stem must not overwrite the first.
	assert.Equal(t, 1, report.Succeeded())
	res, _ := report.Lookup(dup2)
	assert.Error(t, res.Err)
	doc, err := ReadVOC(filepath.Join(outDir, "x.xml"))
	require.NoError(t, err)
	assert.Equal(t, "x.jpg", doc.Filename)

	// Without a report the errors are returned.
	err = WriteVOC(t.TempDir(), data, VOCOptions{}, nil)
	assert.Error(t, err)
}

func TestReadVOCInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xml")
	writeFile(t, path, "<annotation><object>")
	_, err := ReadVOC(path)
	assert.Error(t, err)

	_, err = ReadVOC(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
