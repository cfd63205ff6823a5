package controlsurface

import "strings"

// RenderScope draws display as an oscilloscope trace of width columns and
// height rows. Samples are scaled so that ±amplitude spans the full height and
// values beyond it are pinned to the edge rows.
func RenderScope(display []float32, width, height int, amplitude float32) []string {
	if width <= 0 || height <= 0 {
		return nil
	}

	grid := make([][]byte, height)
	center := height / 2
	for row := range grid {
		fill := byte(' ')
		if row == center {
			fill = '-'
		}
		grid[row] = []byte(strings.Repeat(string(fill), width))
	}

	if len(display) > 0 && amplitude > 0 {
		for column := range width {
			sample := display[column*len(display)/width]
			normalized := min(max(sample/amplitude, -1), 1)
			// +1 is the top row, -1 the bottom row
			row := int((1-normalized)/2*float32(height-1) + 0.5)
			grid[row][column] = '*'
		}
	}

	lines := make([]string, height)
	for row := range grid {
		lines[row] = string(grid[row])
	}
	return lines
}
