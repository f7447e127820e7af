// Package visualize draws bounding boxes over rendered PDF pages.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/dgallion1/docparse/internal/document"
)

const lineWidth = 2

var boxColors = map[document.BoxType]color.NRGBA{
	document.BoxText:  {R: 0, G: 0, B: 255, A: 100},
	document.BoxImage: {R: 255, G: 0, B: 0, A: 100},
	document.BoxTable: {R: 0, G: 255, B: 0, A: 100},
}

// Render rasterizes page pageIndex (0-based) of the PDF at path at the given
// scale and draws boxes over it. Boxes are in unscaled page points. An
// out-of-range page yields a nil image and no error.
func Render(path string, pageIndex int, boxes []document.BoundingBox, scale float64) (image.Image, error) {
	if scale <= 0 {
		scale = 1
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return nil, nil
	}
	// MuPDF renders 72 DPI at scale 1.
	page, err := doc.ImageDPI(pageIndex, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex, err)
	}
	return Overlay(page, boxes, scale), nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Overlay returns a copy of img with each box filled translucently and
// outlined in its type's colour. Unknown box types are skipped.
func Overlay(img image.Image, boxes []document.BoundingBox, scale float64) *image.NRGBA {
	out := imaging.Clone(img)
	for _, b := range boxes {
		c, ok := boxColors[b.Type]
		if !ok {
			continue
		}
		r := pixelRect(b.Scale(scale)).Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		src := image.NewUniform(c)
		draw.Draw(out, r, src, image.Point{}, draw.Over)
		for _, edge := range outline(r) {
			draw.Draw(out, edge, src, image.Point{}, draw.Over)
		}
	}
	return out
}

// Grid pastes images left to right, top to bottom, into cols columns of
// cells sized to the largest image, on a white background.
func Grid(images []image.Image, cols int) *image.NRGBA {
	if len(images) == 0 {
		return nil
	}
	if cols <= 0 {
		cols = 2
	}
	cols = min(cols, len(images))
	rows := (len(images) + cols - 1) / cols

	var cellW, cellH int
	for _, img := range images {
		cellW = max(cellW, img.Bounds().Dx())
		cellH = max(cellH, img.Bounds().Dy())
	}

	grid := imaging.New(cellW*cols, cellH*rows, color.White)
	for i, img := range images {
		pos := image.Pt((i%cols)*cellW, (i/cols)*cellH)
		grid = imaging.Paste(grid, img, pos)
	}
	return grid
}

func pixelRect(b document.BoundingBox) image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X0)), int(math.Floor(b.Y0)),
		int(math.Ceil(b.X1)), int(math.Ceil(b.Y1)),
	)
}

// outline returns the border strips of r, lineWidth pixels thick.
func outline(r image.Rectangle) []image.Rectangle {
	w := min(lineWidth, r.Dx(), r.Dy())
	return []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y+w, r.Min.X+w, r.Max.Y-w),
		image.Rect(r.Max.X-w, r.Min.Y+w, r.Max.X, r.Max.Y-w),
	}
}
