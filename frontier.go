// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

// Cell identifies the unit cell whose lower corner is grid point (Row, Col).
// Valid cells satisfy 0 <= Row, Col < Steps-1.
type Cell struct {
	Row, Col int
}

// FrontierCells returns the cells whose four corners are neither all maxed
// nor all escaped, in row-major order. Only the boolean "maxed" status of
// each point is consulted, never the exact counts.
func FrontierCells(f EscapeField) []Cell {
	if f.Steps < 2 {
		return nil
	}

	maxed := make([]uint8, len(f.Iters))
	for i, n := range f.Iters {
		if n == f.MaxIters {
			maxed[i] = 1
		}
	}

	var cells []Cell
	s := f.Steps
	for row := 0; row < s-1; row++ {
		top := maxed[row*s : (row+1)*s]
		bottom := maxed[(row+1)*s : (row+2)*s]
		for col := 0; col < s-1; col++ {
			sum := top[col] + top[col+1] + bottom[col] + bottom[col+1]
			if sum > 0 && sum < 4 {
				cells = append(cells, Cell{Row: row, Col: col})
			}
		}
	}
	return cells
}
