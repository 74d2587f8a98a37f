package yolo2voc

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow

	"github.com/sensorable/yolo2voc/internal/logger"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// tfLabelMap assigns the integer class IDs of the TensorFlow object detection API to labels.
// Labels keep the ID of the class index they were first seen with, i.e. index + 1, as ID 0 is
// reserved for the background.
type tfLabelMap struct {
	ids  map[string]int32
	used map[int32]bool
	max  int32
}

func newTFLabelMap() *tfLabelMap {
	return &tfLabelMap{ids: make(map[string]int32), used: make(map[int32]bool)}
}

// id returns the ID for label, assigning one if necessary.
func (m *tfLabelMap) id(label string, attrs map[string]interface{}) int32 {
	if id, ok := m.ids[label]; ok {
		return id
	}

	id := m.max + 1
	if s, ok := attrs[ClassIndex].(string); ok {
		if idx, err := strconv.Atoi(s); err == nil && idx >= 0 && !m.used[int32(idx)+1] {
			id = int32(idx) + 1
		}
	}
	m.ids[label] = id
	m.used[id] = true
	if id > m.max {
		m.max = id
	}
	return id
}

// write writes the label map in prototxt format, ordered by ID.
func (m *tfLabelMap) write(w io.Writer) error {
	labels := make([]string, 0, len(m.ids))
	for k := range m.ids {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool { return m.ids[labels[i]] < m.ids[labels[j]] })

	for _, l := range labels {
		if _, err := fmt.Fprintf(w, "item {\n  id: %d\n  name: %q\n}\n", m.ids[l], l); err != nil {
			return err
		}
	}
	return nil
}

// toTFRecord converts the intermediate representation for a single file to the TFRecord feature
// map. The image size is taken from the encoded image and must match the size the annotation
// coordinates refer to.
func toTFRecord(fileData AnnotatedFile, labels *tfLabelMap) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(fileData.FilePath)
	if err != nil {
		return nil, &ImageReadError{Path: fileData.FilePath, Err: err}
	}
	if img.Width != fileData.Width || img.Height != fileData.Height {
		return nil, fmt.Errorf("encoded image %q is %dx%d, annotations are for %dx%d",
			fileData.FilePath, img.Width, img.Height, fileData.Width, fileData.Height)
	}

	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return nil, &ImageReadError{Path: fileData.FilePath, Err: err}
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = filepath.Base(fileData.FilePath)
	f["image/source_id"] = fileData.FilePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		xmins[i] = float32(a.Coords[0]) / float32(fileData.Width)
		ymins[i] = float32(a.Coords[1]) / float32(fileData.Height)
		xmaxs[i] = float32(a.Coords[2]) / float32(fileData.Width)
		ymaxs[i] = float32(a.Coords[3]) / float32(fileData.Height)
		classes[i] = a.Label
		classIDs[i] = int64(labels.id(a.Label, a.Attributes))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when
// numShards>1). Files that fail to convert are logged and left out.
//
// The label map of all written labels is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data AnnotatedFiles,
	numShards int) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	labels := newTFLabelMap()

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	var shardWriter *bufio.Writer
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		flushErr := shardWriter.Flush()
		closeErr := shardFile.Close()
		shardFile = nil
		if flushErr != nil {
			return flushErr
		}
		return closeErr
	}
	defer closeWithErrCheck(closerFunc(closeShard), &err)

	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			if err := closeShard(); err != nil {
				return err
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %w", shardPath, err)
			}
			shardFile = f
			shardWriter = bufio.NewWriter(f)
		}

		features, err := toTFRecord(fileData, labels)
		if err != nil {
			logger.S().Warnw("Failed to convert to TFRecord", "image", fileData.FilePath, "error", err)
			continue
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardWriter, tfExample); err != nil {
			return fmt.Errorf("failed to write example: %w", err)
		}
	}

	return saveTFRecordLabelMap(labelMapPath, labels)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map in prototxt format to path.
func saveTFRecordLabelMap(path string, labels *tfLabelMap) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if err := labels.write(file); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}
	return nil
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
