// Converts YOLO object detection labels to PASCAL VOC XML annotations, one file per image.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sensorable/yolo2voc"
	"github.com/sensorable/yolo2voc/internal/logger"
)

var (
	labelDirPath string // The input directory with the YOLO .txt files.
	imageDirPath string // The input directory with the labeled images.
	outDirPath   string // The output directory for the VOC .xml files.

	classMapPath    string // The class map file (YAML or one name per line).
	allowUnmapped   bool   // Keep objects with unknown class indices, with empty names.
	strictLines     bool   // Fail a whole image on any bad line.
	autoOrient      bool   // Use the EXIF oriented image size.
	clipBboxes      bool   // Clip boxes to the image bounds.
	rootElement     string // The VOC root element name.
	pathSeparator   rune   // The separator used to split image paths (0 is the host's).
	verbose         bool   // Human readable debug logging.
	labelMappings   string // A comma-separated string of label mappings.
	bboxScaleWidth  float64
	bboxScaleHeight float64

	filterLabels        string  // A comma-separated string of labels to keep (empty keeps all).
	filterRequireLabel  bool    // Do not write files with no labels (after other filters).
	filterMinBboxWidth  float64 // The minimum bounding box width.
	filterMinBboxHeight float64 // The minimum bounding box height.

	imageOpts yolo2voc.ImageOptions // Image re-encoding, enabled by -images-out.

	setNames   []string // The image set names.
	setSplits  []int    // The cumulative split percentages for the image sets.
	setsDir    string   // The output directory for the image set lists.
	splitSeed  int64    // The seed for the random split.
	tfRecord   string   // The TFRecord output file.
	tfLabelMap string   // The TFRecord label map output file.
	numShards  int      // The number of TFRecord shard files to create.
)

const (
	exitFailures = 1 // At least one image failed.
	exitUsage    = 2 // Bad arguments or a fatal error.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintf(os.Stderr, "  %s [flags] indir_annotation indir_image out_dir\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		_, _ = fmt.Fprintln(os.Stderr, msg...)
		flag.Usage()
		os.Exit(exitUsage)
	}

	// Conversion arguments.
	flag.StringVar(&classMapPath, "classes", classMapPath,
		"The class map `file`: YAML (index: name mapping, or a dataset file with \"names\") or one"+
			" name per line; defaults to the built-in COCO vehicle subset")
	flag.BoolVar(&allowUnmapped, "allow-unmapped", allowUnmapped,
		"Keep objects with class indices missing from the class map, with an empty name")
	flag.BoolVar(&strictLines, "strict", strictLines,
		"Fail an image if any line of its YOLO file is malformed, instead of skipping the line")
	flag.BoolVar(&autoOrient, "auto-orient", autoOrient,
		"Apply the EXIF orientation of images when reading their size")
	flag.BoolVar(&clipBboxes, "clip", clipBboxes, "Clip bounding boxes to the image bounds")
	flag.StringVar(&rootElement, "root", yolo2voc.DefaultRootElement,
		"The `name` of the XML root element")
	sep := flag.String("path-sep", "",
		"The `separator` used to find the folder and file name of image paths (/ or \\);"+
			" empty uses the host's conventions")
	flag.BoolVar(&verbose, "v", verbose, "Human readable debug logging")

	// Transformation and filter arguments.
	flag.StringVar(&labelMappings, "map-labels", labelMappings,
		"Comma-separated list of old=new label (sub-)string replacements")
	flag.Float64Var(&bboxScaleWidth, "bbox-scale-x", 1,
		"A scale factor for the width of all bounding boxes")
	flag.Float64Var(&bboxScaleHeight, "bbox-scale-y", 1,
		"A scale factor for the height of all bounding boxes")
	flag.StringVar(&filterLabels, "filter-labels", filterLabels,
		"Comma-separated list of labels to keep (after map-labels; empty string keeps all)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one label (after filters) to write the annotation file")
	flag.Float64Var(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` for object bounding boxes (before resizing)")
	flag.Float64Var(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` for object bounding boxes (before resizing)")

	// Image processing arguments.
	flag.StringVar(&imageOpts.OutDir, "images-out", "",
		"The `path` to the image output directory (required when resizing)")
	flag.IntVar(&imageOpts.LongerSide, "resize-longer", 0,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	flag.IntVar(&imageOpts.ShorterSide, "resize-shorter", 0,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	flag.StringVar(&imageOpts.DownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOpts.UpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOpts.Encoding, "image-enc", "jpg",
		"The `encoding` for output images {jpg, png}")
	flag.IntVar(&imageOpts.JPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// Image set arguments.
	sets := flag.String("sets", "",
		"Comma-separated image set `names` (e.g. train,val) to split the converted images into")
	splits := flag.String("split", "",
		"Comma-separated split percentages (`percent[,...]`), one per set; must add up to 100%")
	flag.StringVar(&setsDir, "sets-dir", setsDir,
		"The output `directory` for the image set lists; defaults to <out_dir>/ImageSets/Main")
	flag.Int64Var(&splitSeed, "seed", 1, "The random seed for -split")

	// TFRecord arguments.
	flag.StringVar(&tfRecord, "tfrecord", tfRecord,
		"Also write the annotations and images as TFRecord to this `path`")
	flag.StringVar(&tfLabelMap, "tfrecord-label-map", tfLabelMap,
		"The TFRecord label map output `path`; defaults to <tfrecord>.pbtxt")
	flag.IntVar(&numShards, "num-shards", 1, "The number of TFRecord shard files to create")

	flag.Parse()

	if flag.NArg() != 3 {
		printUsageAndExit("Expected the arguments indir_annotation indir_image out_dir")
	}
	labelDirPath = filepath.Clean(flag.Arg(0))
	outDirPath = filepath.Clean(flag.Arg(2))

	// The folder field needs a parent directory name even for relative image paths.
	var err error
	if imageDirPath, err = filepath.Abs(flag.Arg(1)); err != nil {
		printUsageAndExit("Invalid image directory: ", err)
	}

	switch *sep {
	case "":
	case "/", "\\":
		pathSeparator = rune((*sep)[0])
	default:
		printUsageAndExit("Invalid -path-sep, must be / or \\")
	}
	if rootElement == "" {
		printUsageAndExit("The -root element name must not be empty")
	}

	// Transformation arguments.
	if bboxScaleWidth <= 0 || bboxScaleHeight <= 0 {
		printUsageAndExit("Invalid bounding box scale factor")
	}

	// Image processing arguments.
	if (imageOpts.LongerSide > 0 || imageOpts.ShorterSide > 0) && imageOpts.OutDir == "" {
		printUsageAndExit("Missing image output directory path")
	}
	if imageOpts.OutDir != "" {
		imageOpts.OutDir = filepath.Clean(imageOpts.OutDir)
		if imageOpts.OutDir == filepath.Clean(flag.Arg(1)) || imageOpts.OutDir == imageDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}
	if imageOpts.JPEGQuality < 1 || imageOpts.JPEGQuality > 100 {
		printUsageAndExit("Invalid -jpeg-quality, must be in [1, 100]")
	}
	imageOpts.AutoOrient = autoOrient

	// Parse splits as cumulative int percentages.
	if *sets != "" {
		setNames = strings.Split(*sets, ",")
		splitValues := strings.Split(*splits, ",")
		if len(splitValues) != len(setNames) {
			printUsageAndExit("The number of sets in -sets and percentages in -split must match")
		}
		var splitSum int
		for _, v := range splitValues {
			i, err := strconv.Atoi(v)
			if err != nil || i < 0 || i > 100 {
				printUsageAndExit("Invalid value in -split: ", v)
			}
			splitSum += i
			setSplits = append(setSplits, splitSum)
		}
		if splitSum != 100 {
			printUsageAndExit("The values in -split must add up to 100%")
		}
		if setsDir == "" {
			setsDir = filepath.Join(outDirPath, "ImageSets", "Main")
		}
	}

	if tfRecord != "" && tfLabelMap == "" {
		tfLabelMap = tfRecord + ".pbtxt"
	}
	// The TFRecord embeds the image bytes as they are on disk, unrotated unless re-encoded.
	if tfRecord != "" && autoOrient && imageOpts.LongerSide <= 0 && imageOpts.ShorterSide <= 0 {
		printUsageAndExit("-tfrecord with -auto-orient requires resized images (-images-out)")
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := logger.Init(verbose); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialise logging:", err)
		return exitUsage
	}
	defer logger.Sync()
	log := logger.S()

	classes := yolo2voc.DefaultClassMap()
	if classMapPath != "" {
		var err error
		if classes, err = yolo2voc.LoadClassMap(classMapPath); err != nil {
			log.Errorw("Failed to load the class map", "path", classMapPath, "error", err)
			return exitUsage
		}
		log.Infof("Loaded %d classes from %s", classes.Len(), classMapPath)
	}
	for _, index := range classes.Indices() {
		name, _ := classes.Name(index)
		log.Debugw("Class", "index", index, "name", name)
	}

	// Parse input.
	data, report, err := yolo2voc.FromYOLO(labelDirPath, imageDirPath, yolo2voc.YOLOOptions{
		Classes:              classes,
		AllowUnmappedClasses: allowUnmapped,
		StrictLines:          strictLines,
		AutoOrient:           autoOrient,
	})
	if err != nil {
		log.Errorw("Failed to parse the input", "error", err)
		return exitUsage
	}

	// Map labels.
	if labelMappings != "" {
		if err := data.MapLabels(strings.Split(labelMappings, ",")); err != nil {
			log.Errorw("Failed to map labels", "error", err)
			return exitUsage
		}
	}

	data.TransformBboxes(bboxScaleWidth, bboxScaleHeight)

	// Apply filters.
	var labelNames []string
	if filterLabels != "" {
		labelNames = strings.Split(filterLabels, ",")
	}
	dropped := data.Filter(labelNames, filterRequireLabel, filterMinBboxWidth, filterMinBboxHeight)
	for _, f := range dropped {
		if res, ok := report.Lookup(f.SourcePath); ok {
			res.Dropped = true
		}
	}

	// Process images.
	if imageOpts.OutDir != "" {
		if err := os.MkdirAll(imageOpts.OutDir, 0755); err != nil {
			log.Errorw("Failed to create the image output directory", "error", err)
			return exitUsage
		}
	}
	failed, errs, err := data.ProcessImages(imageOpts)
	if err != nil {
		log.Errorw("Image processing failed", "error", err)
		return exitUsage
	}
	for i, f := range failed {
		if res, ok := report.Lookup(f.SourcePath); ok && res.Err == nil {
			res.Err = errs[i]
		}
	}

	if clipBboxes {
		data.ClipBboxes()
	}

	// Write the VOC files.
	vocOpts := yolo2voc.VOCOptions{RootElement: rootElement, PathSeparator: pathSeparator}
	if err := yolo2voc.WriteVOC(outDirPath, data, vocOpts, report); err != nil {
		log.Errorw("Conversion failed", "error", err)
		return exitUsage
	}

	// Only images with a written annotation go into the image sets and the TFRecord.
	written := make(yolo2voc.AnnotatedFiles, 0, len(data))
	for _, f := range data {
		if res, ok := report.Lookup(f.SourcePath); ok && res.OK() {
			written = append(written, f)
		}
	}

	if len(setNames) > 0 {
		datasets, err := written.Split(setSplits, splitSeed)
		if err == nil {
			err = yolo2voc.WriteImageSets(setsDir, setNames, datasets)
		}
		if err != nil {
			log.Errorw("Failed to write the image sets", "error", err)
			return exitUsage
		}
		for i, d := range datasets {
			log.Infof("Image set %s: %d images", setNames[i], len(d))
		}
	}

	if tfRecord != "" {
		if err := yolo2voc.WriteTFRecord(tfRecord, tfLabelMap, written, numShards); err != nil {
			log.Errorw("Failed to write the TFRecord", "error", err)
			return exitUsage
		}
		log.Infof("Successfully wrote %d examples to %s", len(written), tfRecord)
	}

	// Report.
	for _, res := range report.Failures() {
		log.Errorw("Conversion failed", "image", res.ImagePath, "error", res.Err)
	}
	log.Infof("Converted %d of %d images to %s, %d failed",
		report.Succeeded(), len(report.Results), outDirPath, report.Failed())

	if report.Failed() > 0 {
		return exitFailures
	}
	return 0
}
