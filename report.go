package yolo2voc

// Per image conversion results.

// Result is the outcome of converting one image and its YOLO file.
type Result struct {
	ImagePath string  // The source image.
	LabelPath string  // The expected YOLO file.
	OutPath   string  // The written VOC file; empty unless written.
	Objects   int     // The number of objects written.
	Skipped   []error // Line errors that were skipped over.
	Dropped   bool    // Not written because no objects were left after filtering.
	Err       error   // Set if the image failed.
}

// OK reports whether the image did not fail.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Report collects one Result per image, in directory order.
type Report struct {
	Results []*Result

	byImage map[string]*Result
}

func newReport() *Report {
	return &Report{byImage: make(map[string]*Result)}
}

// add appends a new Result for imagePath.
func (r *Report) add(imagePath, labelPath string) *Result {
	res := &Result{ImagePath: imagePath, LabelPath: labelPath}
	r.Results = append(r.Results, res)
	r.byImage[imagePath] = res
	return res
}

// Lookup returns the Result for the source image at imagePath.
func (r *Report) Lookup(imagePath string) (*Result, bool) {
	res, ok := r.byImage[imagePath]
	return res, ok
}

// fail records err for the source image of f, unless it already failed.
func (r *Report) fail(f AnnotatedFile, err error) {
	res, ok := r.byImage[f.SourcePath]
	if !ok {
		res = r.add(f.SourcePath, f.LabelPath)
	}
	if res.Err == nil {
		res.Err = err
	}
}

// Succeeded is the number of images that did not fail.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed is the number of images that failed.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Failures returns the failed Results.
func (r *Report) Failures() []*Result {
	var failed []*Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}
