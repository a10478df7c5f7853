package geometry

import "math"

// GridKey identifies a grid cell by its integer multiples of the grid size.
type GridKey struct {
	X int64
	Y int64
}

// SnapToGrid rounds each coordinate to the nearest multiple of grid.
func SnapToGrid(p Position, grid float64) Position {
	if grid <= 0 {
		return p
	}
	return Position{
		X: snap(p.X, grid),
		Y: snap(p.Y, grid),
	}
}

func snap(v, grid float64) float64 {
	s := math.Round(v/grid) * grid
	// round away representation noise such as 5.079999999999999
	s = math.Round(s*1e6) / 1e6
	if s == 0 {
		return 0
	}
	return s
}

// KeyOf returns the grid cell that p snaps to.
func KeyOf(p Position, grid float64) GridKey {
	return GridKey{
		X: int64(math.Round(p.X / grid)),
		Y: int64(math.Round(p.Y / grid)),
	}
}

// OnGrid reports whether p lies on the grid within eps.
func OnGrid(p Position, grid, eps float64) bool {
	return onGrid(p.X, grid, eps) && onGrid(p.Y, grid, eps)
}

func onGrid(v, grid, eps float64) bool {
	r := math.Mod(math.Abs(v), grid)
	return r < eps || grid-r < eps
}
