package motion

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// buildMask rasterizes the configured ROI polygon into a binary mask at the
// processing resolution. Pixels outside the polygon stay zero and can never
// contribute to a detection.
func buildMask(roi [][]int, size image.Point) (*gocv.Mat, error) {
	points := make([]image.Point, 0, len(roi))
	for i, pt := range roi {
		x, y := pt[0], pt[1]
		if x < 0 || x > size.X || y < 0 || y > size.Y {
			return nil, fmt.Errorf("roi point %d (%d,%d) outside processing resolution %dx%d",
				i, x, y, size.X, size.Y)
		}
		points = append(points, image.Pt(x, y))
	}

	mask := gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8U)

	pv := gocv.NewPointVectorFromPoints(points)
	defer pv.Close()
	polys := gocv.NewPointsVector()
	defer polys.Close()
	polys.Append(pv)

	gocv.FillPoly(&mask, polys, color.RGBA{R: 255, G: 255, B: 255, A: 0})

	return &mask, nil
}
