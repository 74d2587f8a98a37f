package yolo2voc

import (
	"image"
	_ "image/gif"  // GIF decoding for image.DecodeConfig.
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // BMP decoding for image.DecodeConfig.
	_ "golang.org/x/image/tiff" // TIFF decoding for image.DecodeConfig.
	_ "golang.org/x/image/webp" // WebP decoding for image.DecodeConfig.
)

// imageSize returns the pixel width and height of the image at path.
//
// Only the image header is read, unless autoOrient is set, in which case the image is decoded
// and rotated according to its EXIF orientation tag so that the size matches what viewers and
// annotation tools display.
func imageSize(path string, autoOrient bool) (width, height int, err error) {
	if autoOrient {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return 0, 0, &ImageReadError{Path: path, Err: err}
		}
		b := img.Bounds()
		return b.Dx(), b.Dy(), nil
	}

	config, _, err := decodeImageConfig(path)
	if err != nil {
		return 0, 0, &ImageReadError{Path: path, Err: err}
	}
	return config.Width, config.Height, nil
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
	resized image.Image, scaleWidth, scaleHeight float64) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	var filter imaging.ResampleFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	} else {
		filter = upsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path, applying its EXIF orientation if autoOrient
// is set.
func loadImage(path string, autoOrient bool) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(autoOrient))
	if err != nil {
		return nil, &ImageReadError{Path: path, Err: err}
	}
	return img, nil
}

// saveImage saves the image to path, encoding it as PNG or JPG, depending on the file extension
// of path.
func saveImage(path string, img image.Image, jpegQuality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
