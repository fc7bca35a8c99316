package imgclass

import (
	"image"
	"image/draw"
)

// applyOrientation returns img transformed so that it displays upright
// according to EXIF orientation o. Orientations outside 2..8 return img as is.
func applyOrientation(img image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for dy := range dh {
		for dx := range dw {
			var sx, sy int
			switch o {
			case 2: // mirror horizontal
				sx, sy = w-1-dx, dy
			case 3: // rotate 180
				sx, sy = w-1-dx, h-1-dy
			case 4: // mirror vertical
				sx, sy = dx, h-1-dy
			case 5: // transpose
				sx, sy = dy, dx
			case 6: // rotate 90 CW
				sx, sy = dy, h-1-dx
			case 7: // transverse
				sx, sy = w-1-dy, h-1-dx
			case 8: // rotate 270 CW
				sx, sy = w-1-dy, dx
			}
			dst.SetRGBA(dx, dy, src.RGBAAt(sx, sy))
		}
	}
	return dst
}
