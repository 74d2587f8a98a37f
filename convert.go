package yolo2voc

// Options configures Convert.
type Options struct {
	YOLO YOLOOptions
	VOC  VOCOptions
	Clip bool // Clip boxes to the image bounds before rounding.
}

// Convert converts the YOLO files in labelDir for the images in imageDir to one VOC file per
// image in outDir.
//
// The Report holds one Result per image. The error is only set if a directory cannot be read or
// created; failures of individual images never stop the batch.
func Convert(labelDir, imageDir, outDir string, opts Options) (*Report, error) {
	data, report, err := FromYOLO(labelDir, imageDir, opts.YOLO)
	if err != nil {
		return nil, err
	}
	if opts.Clip {
		data.ClipBboxes()
	}
	if err := WriteVOC(outDir, data, opts.VOC, report); err != nil {
		return report, err
	}
	return report, nil
}
