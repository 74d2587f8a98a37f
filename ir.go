package yolo2voc

// The intermediate annotation metadata representation.

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/sensorable/yolo2voc/internal/logger"
)

// Keys for known annotation attributes.
const (
	ClassIndex = "ClassIndex" // The YOLO class index token. Type string.
	SourceLine = "SourceLine" // The 1-based line in the YOLO file. Type int.
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Attributes map[string]interface{} // Additional attributes of this annotation.
	Coords     [4]float64             // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label      string
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the intermediate representation of an image and its objects.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations, in YOLO file line order.
	FilePath    string       // The annotated image.
	SourcePath  string       // The image the annotations were read for; FilePath may move on.
	LabelPath   string       // The YOLO file the annotations were read from.
	Width       int          // The image width in pixels.
	Height      int          // The image height in pixels.
}

// scaleCoords scales all Annotations.Coords by the given scale factors.
func (f *AnnotatedFile) scaleCoords(width, height float64) {
	for i := range f.Annotations {
		for j := 0; j < 4; j++ {
			if j&1 == 0 {
				f.Annotations[i].Coords[j] *= width
			} else {
				f.Annotations[i].Coords[j] *= height
			}
		}
	}
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// MapLabels replaces label (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new. Replacements are applied in order.
func (data AnnotatedFiles) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	// Extract the individual old and new strings to map between.
	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return fmt.Errorf("invalid mapping: %v", v)
		}

		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]

			oldLabel := a.Label
			for _, r := range replacements {
				a.Label = strings.ReplaceAll(a.Label, r.old, r.new)
			}

			if a.Label != oldLabel {
				count++
			}
		}
	}

	logger.S().Infof("The label mappings changed %d labels", count)
	return nil
}

// TransformBboxes scales bounding boxes about their centers by the horizontal and vertical scale
// factors scaleX and scaleY.
func (data AnnotatedFiles) TransformBboxes(scaleX, scaleY float64) {
	if scaleX == 1 && scaleY == 1 {
		return
	}
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]
			w := a.Width()
			h := a.Height()
			dx := (w*scaleX - w) * 0.5
			dy := (h*scaleY - h) * 0.5

			a.Coords[0] -= dx
			a.Coords[1] -= dy
			a.Coords[2] += dx
			a.Coords[3] += dy
		}
	}
}

// ClipBboxes clips all bounding boxes to the bounds of their image.
func (data AnnotatedFiles) ClipBboxes() {
	clamp := func(v, max float64) float64 {
		return math.Max(0, math.Min(v, max))
	}
	for _, f := range data {
		w, h := float64(f.Width), float64(f.Height)
		for i := range f.Annotations {
			c := &f.Annotations[i].Coords
			c[0], c[2] = clamp(c[0], w), clamp(c[2], w)
			c[1], c[3] = clamp(c[1], h), clamp(c[3], h)
		}
	}
}

// Filter removes annotations which do not match any of the given labelNames (when non-empty) or
// have a bounding box smaller than minBboxWidth or minBboxHeight. The order of the remaining
// annotations is unchanged.
//
// If requireLabel is true, files without annotations after filtering are removed as well and
// returned.
func (data *AnnotatedFiles) Filter(labelNames []string, requireLabel bool,
	minBboxWidth, minBboxHeight float64) (removed AnnotatedFiles) {

	inList := func(v string, l []string) bool {
		for _, val := range l {
			if val == v {
				return true
			}
		}
		return false
	}

	numLabelsBefore := 0
	numLabelsAfter := 0

	kept := (*data)[:0]
	for _, d := range *data {
		numLabelsBefore += len(d.Annotations)

		annotations := d.Annotations[:0]
		for _, a := range d.Annotations {
			if minBboxWidth > a.Width() || minBboxHeight > a.Height() {
				continue
			}
			if len(labelNames) > 0 && !inList(a.Label, labelNames) {
				continue
			}
			annotations = append(annotations, a)
		}
		d.Annotations = annotations
		numLabelsAfter += len(d.Annotations)

		if requireLabel && len(d.Annotations) == 0 {
			removed = append(removed, d)
			continue
		}
		kept = append(kept, d)
	}
	*data = kept

	logger.S().Infof("Filtered out %d labels and %d files",
		numLabelsBefore-numLabelsAfter, len(removed))
	return removed
}

// ImageOptions configures ProcessImages.
type ImageOptions struct {
	OutDir             string // The directory receiving the processed images.
	LongerSide         int    // The target length of the longer side (0 keeps the aspect ratio).
	ShorterSide        int    // The target length of the shorter side (0 keeps the aspect ratio).
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string // One of nearest, box, linear, gaussian, lanczos.
	Encoding           string // jpg or png.
	JPEGQuality        int    // The JPEG quality in [1, 100].
	AutoOrient         bool   // Apply the EXIF orientation before resizing.
}

// resampleFilter returns the imaging filter with the given name.
func resampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// ProcessImages resizes all referenced images and writes them to opts.OutDir using the
// requested encoding. FilePath, Width and Height of each file and the coordinates of its
// annotations are updated to describe the written image.
//
// Files whose image could not be processed are removed from data and returned with their
// errors, in input order. This includes every file whose output path was already taken by an
// earlier file with the same stem.
func (data *AnnotatedFiles) ProcessImages(opts ImageOptions) (failed AnnotatedFiles, errs []error,
	err error) {

	if opts.LongerSide <= 0 && opts.ShorterSide <= 0 {
		return nil, nil, nil
	}
	logger.S().Info("Processing images")

	downsample, err := resampleFilter(opts.DownsamplingFilter)
	if err != nil {
		return nil, nil, err
	}
	upsample, err := resampleFilter(opts.UpsamplingFilter)
	if err != nil {
		return nil, nil, err
	}

	// Select the output file extension based on the requested encoding.
	var fileExt string
	switch strings.ToLower(opts.Encoding) {
	case "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return nil, nil, fmt.Errorf("unsupported output encoding %q", opts.Encoding)
	}

	// Images sharing a stem map to the same output file; only the first one is processed.
	fileErrs := make([]error, len(*data))
	outPaths := make([]string, len(*data))
	var todo []int
	written := make(map[string]string, len(*data))
	for i, d := range *data {
		outPaths[i] = filepath.Join(opts.OutDir, stem(d.FilePath)+fileExt)
		if prev, ok := written[outPaths[i]]; ok {
			fileErrs[i] = fmt.Errorf("%q would overwrite the image converted from %q", outPaths[i],
				prev)
			continue
		}
		written[outPaths[i]] = d.FilePath
		todo = append(todo, i)
	}

	// Limit the number of goroutines in flight, as they load potentially large images into
	// memory.
	numTasks := 2 * runtime.NumCPU()
	if len(todo) < numTasks {
		numTasks = len(todo)
	}
	workQueue := make(chan int, 2*numTasks)

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				fileErrs[idx] = processImage(&(*data)[idx], outPaths[idx], opts, downsample,
					upsample)
			}
		}()
	}

	for _, i := range todo {
		workQueue <- i
	}
	close(workQueue)
	wg.Wait()

	kept := (*data)[:0]
	for i, d := range *data {
		if fileErrs[i] != nil {
			failed = append(failed, d)
			errs = append(errs, fileErrs[i])
			continue
		}
		kept = append(kept, d)
	}
	*data = kept

	return failed, errs, nil
}

// processImage resizes and saves the image described by data to outPath and updates data
// accordingly.
func processImage(data *AnnotatedFile, outPath string, opts ImageOptions,
	downsample, upsample imaging.ResampleFilter) error {

	img, err := loadImage(data.FilePath, opts.AutoOrient)
	if err != nil {
		return err
	}

	img, scaleWidth, scaleHeight := resizeImage(img, opts.LongerSide, opts.ShorterSide,
		downsample, upsample)

	if err := saveImage(outPath, img, opts.JPEGQuality); err != nil {
		return fmt.Errorf("cannot save image %q: %w", outPath, err)
	}

	b := img.Bounds()
	data.FilePath = outPath
	data.Width, data.Height = b.Dx(), b.Dy()
	data.scaleCoords(scaleWidth, scaleHeight)
	return nil
}

// Split randomly splits the data into multiple datasets.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned datasets. Its last value must be 100. The same seed yields the same split.
func (data AnnotatedFiles) Split(cumulativeSplits []int, seed int64) ([]AnnotatedFiles, error) {
	datasets := make([]AnnotatedFiles, len(cumulativeSplits))

	// Allocate slightly more than the expected size for each dataset.
	var sum int
	for i, s := range cumulativeSplits {
		percent := s - sum
		if percent < 0 {
			return nil, fmt.Errorf("the split percentages must not decrease")
		}
		datasets[i] = make(AnnotatedFiles, 0, int(1.05*float64(percent)/100*float64(len(data))))
		sum = s
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	rng := rand.New(rand.NewSource(seed))

outer:
	for _, d := range data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], d)
				continue outer
			}
		}
	}

	return datasets, nil
}
