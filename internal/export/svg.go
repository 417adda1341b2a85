package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/condensim/internal/mesh"
)

// ramp runs from dilute (dark blue) to dense (yellow).
var ramp = [][3]float64{
	{68, 1, 84},
	{59, 82, 139},
	{33, 145, 140},
	{94, 201, 98},
	{253, 231, 37},
}

func color(v, lo, hi float64) string {
	f := 0.0
	if hi > lo {
		f = (v - lo) / (hi - lo)
	}
	f = math.Max(0, math.Min(1, f))
	pos := f * float64(len(ramp)-1)
	i := int(pos)
	if i >= len(ramp)-1 {
		i = len(ramp) - 2
	}
	t := pos - float64(i)
	var rgb [3]int
	for k := range rgb {
		rgb[k] = int(math.Round(ramp[i][k] + t*(ramp[i+1][k]-ramp[i][k])))
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}

// midPlane returns the z of the layer closest to z=0, or NaN on 2D meshes.
func midPlane(m *mesh.Mesh) float64 {
	if m.Dim() != 3 {
		return math.NaN()
	}
	plane := math.Inf(1)
	for _, z := range m.Coordinates(2) {
		if math.Abs(z) < math.Abs(plane) {
			plane = z
		}
	}
	return plane
}

// SnapshotSVG draws one field as a square per cell, scale pixels wide.
// 3D meshes are cut at the mid-plane. A non-empty locus is drawn as a ring.
func SnapshotSVG(m *mesh.Mesh, values, locus []float64, scale float64) string {
	if m == nil || len(values) != m.NumCells() {
		return ""
	}
	dx := m.CellSize()
	xs, ys := m.Coordinates(0), m.Coordinates(1)
	plane := midPlane(m)

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range values {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
		lo, hi = math.Min(lo, values[i]), math.Max(hi, values[i])
	}
	width := ((maxX-minX)/dx + 1) * scale
	height := ((maxY-minY)/dx + 1) * scale

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="none">
`, width, height, width, height))

	zs := []float64(nil)
	if !math.IsNaN(plane) {
		zs = m.Coordinates(2)
	}
	for i, v := range values {
		if zs != nil && math.Abs(zs[i]-plane) > 1e-9*dx {
			continue
		}
		x := (xs[i] - minX) / dx * scale
		y := (maxY - ys[i]) / dx * scale
		sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>
`, x, y, scale, scale, color(v, lo, hi)))
	}
	sb.WriteString("</g>\n")

	if len(locus) >= 2 {
		cx := (locus[0]-minX)/dx*scale + scale/2
		cy := (maxY-locus[1])/dx*scale + scale/2
		sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="%.1f" fill="none" stroke="#ff3030" stroke-width="2"/>
`, cx, cy, 1.5*scale))
	}
	sb.WriteString(fmt.Sprintf(`<text x="4" y="14" font-family="monospace" font-size="12" fill="#e0e0e0">%.4g .. %.4g</text>
`, lo, hi))
	sb.WriteString("</svg>")
	return sb.String()
}

// TrajectorySVG draws the locus path from its first two coordinates.
func TrajectorySVG(points [][]float64, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if len(p) < 2 {
			return ""
		}
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, p := range points {
		x := (p[0] - minX) / rangeX * float64(width)
		y := float64(height) - (p[1]-minY)/rangeY*float64(height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}
