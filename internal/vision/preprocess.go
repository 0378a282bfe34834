package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

type normalization struct {
	mean, std float32
}

var (
	detNorm  = normalization{mean: 127.5, std: 128}
	embNorm  = normalization{mean: 127.5, std: 127.5}
	attrNorm = normalization{mean: 0, std: 1}
)

// decodePhoto accepts PNG and JPEG uploads.
func decodePhoto(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty image")
	}
	return img, nil
}

// toTensor resizes img to size x size (nearest neighbour) and lays it out as
// normalised RGB planes.
func toTensor(img image.Image, size int, n normalization) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := size * size
	out := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		sy := b.Min.Y + y*h/size
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*w/size
			r, g, bl, _ := img.At(sx, sy).RGBA()
			i := y*size + x
			out[i] = (float32(r>>8) - n.mean) / n.std
			out[plane+i] = (float32(g>>8) - n.mean) / n.std
			out[2*plane+i] = (float32(bl>>8) - n.mean) / n.std
		}
	}
	return out
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropFace cuts the detection out with 10% padding per side, clipped to the image.
// It returns nil for degenerate boxes.
func cropFace(img image.Image, d Detection) image.Image {
	bounds := img.Bounds()
	x1, y1 := int(d.BBox[0]), int(d.BBox[1])
	x2, y2 := int(d.BBox[2]), int(d.BBox[3])
	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return nil
	}

	padX, padY := w/10, h/10
	rect := image.Rect(x1-padX, y1-padY, x2+padX, y2+padY).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil
	}

	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			crop.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return crop
}
