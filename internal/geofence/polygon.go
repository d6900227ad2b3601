package geofence

import (
	"fmt"
	"math"

	"vms-service/internal/domain/vms"
)

const epsilon = 1e-9

// Validate checks that points describe a simple polygon: at least three
// vertices, finite coordinates, non-zero area and no crossing edges.
func Validate(points []vms.Point) error {
	if len(points) < 3 {
		return fmt.Errorf("%w: boundary needs at least 3 points, got %d", vms.ErrInvalidInput, len(points))
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: boundary point %d is not finite", vms.ErrInvalidInput, i)
		}
	}
	if math.Abs(area(points)) < epsilon {
		return fmt.Errorf("%w: boundary has zero area", vms.ErrInvalidInput)
	}

	n := len(points)
	for i := 0; i < n; i++ {
		a1, a2 := points[i], points[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// adjacent edges share a vertex
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := points[j], points[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("%w: boundary edges %d and %d intersect", vms.ErrInvalidInput, i, j)
			}
		}
	}
	return nil
}

// Contains reports whether p lies inside the polygon. Points on an edge or
// vertex count as inside.
func Contains(polygon []vms.Point, p vms.Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		if onSegment(polygon[i], polygon[(i+1)%n], p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xCross := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func area(points []vms.Point) float64 {
	var sum float64
	n := len(points)
	for i := 0; i < n; i++ {
		a, b := points[i], points[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

func cross(o, a, b vms.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(a, b, p vms.Point) bool {
	if math.Abs(cross(a, b, p)) > epsilon*math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y)) {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-epsilon && p.X <= math.Max(a.X, b.X)+epsilon &&
		p.Y >= math.Min(a.Y, b.Y)-epsilon && p.Y <= math.Max(a.Y, b.Y)+epsilon
}

func sign(v float64) int {
	switch {
	case v > epsilon:
		return 1
	case v < -epsilon:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, q1, q2 vms.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1 != d2 && d3 != d4 && d1 != 0 && d2 != 0 && d3 != 0 && d4 != 0 {
		return true
	}
	if d1 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	return false
}
