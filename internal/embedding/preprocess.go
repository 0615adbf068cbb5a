package embedding

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ImageNet normalization expected by MobileNet-family extractors.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensorize scales img to size x size and writes it into dst as a
// normalized NCHW float tensor with a batch of one.
func Tensorize(img image.Image, size int, dst []float32) error {
	plane := size * size
	if size <= 0 || len(dst) != 3*plane {
		return fmt.Errorf("tensor buffer has %d values, need %d", len(dst), 3*plane)
	}

	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	for y := range size {
		for x := range size {
			i := resized.PixOffset(x, y)
			p := y*size + x
			for c := range 3 {
				v := float32(resized.Pix[i+c]) / 255
				dst[c*plane+p] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return nil
}
