package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type shapeKind int

const (
	shapeBox shapeKind = iota
	shapePolygon
	shapeCircle
)

// shape is a parsed geometric literal for within and intersects.
type shape struct {
	kind   shapeKind
	bound  orb.Bound
	ring   orb.Ring
	center orb.Point
	radius float64
}

// compileNear renders a distance predicate against a point column:
// {"point": [x, y], "distance": d}, {"lat": .., "lng": .., "radius": d} or a
// GeoJSON Point with a "distance" member.
func compileNear(o operand, a *ParameterAllocator) (string, error) {
	obj, ok := o.value.(map[string]any)
	if !ok {
		return "", errors.New("expects an object with a point and a distance")
	}
	center, err := centerOf(obj)
	if err != nil {
		return "", err
	}
	dist, err := radiusOf(obj)
	if err != nil {
		return "", err
	}
	return o.field + " <-> " + pointSQL(center, a) + " <= " + a.Placeholder(dist), nil
}

// shapeOp renders containment (<@) or overlap (&&) against a box, polygon or
// circle literal.
func shapeOp(sym string) compileFunc {
	return func(o operand, a *ParameterAllocator) (string, error) {
		s, err := parseShape(o.value)
		if err != nil {
			return "", err
		}
		var rhs string
		switch s.kind {
		case shapeBox:
			rhs = "box(" + pointSQL(s.bound.Min, a) + ", " + pointSQL(s.bound.Max, a) + ")"
		case shapePolygon:
			rhs = a.Placeholder(polygonText(s.ring)) + "::polygon"
		case shapeCircle:
			rhs = "circle(" + pointSQL(s.center, a) + ", " + a.Placeholder(s.radius) + ")"
		}
		return o.field + " " + sym + " " + rhs, nil
	}
}

func parseShape(v any) (shape, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return shape{}, errors.New("expects a box, polygon or circle object")
	}
	if _, ok := obj["type"]; ok {
		return geoJSONShape(obj)
	}
	if raw, ok := obj["box"]; ok {
		pts, err := pointList(raw)
		if err != nil {
			return shape{}, err
		}
		if len(pts) != 2 {
			return shape{}, errors.New("box expects two corner points")
		}
		return boxShape(pts[0], pts[1]), nil
	}
	if rawMin, ok := obj["min"]; ok {
		lo, err := parsePoint(rawMin)
		if err != nil {
			return shape{}, err
		}
		hi, err := parsePoint(obj["max"])
		if err != nil {
			return shape{}, err
		}
		return boxShape(lo, hi), nil
	}
	if raw, ok := obj["polygon"]; ok {
		pts, err := pointList(raw)
		if err != nil {
			return shape{}, err
		}
		return polygonShape(orb.Ring(pts))
	}
	if _, ok := obj["center"]; ok {
		center, err := centerOf(obj)
		if err != nil {
			return shape{}, err
		}
		r, err := radiusOf(obj)
		if err != nil {
			return shape{}, err
		}
		return shape{kind: shapeCircle, center: center, radius: r}, nil
	}
	return shape{}, errors.New("expects one of box, min/max, polygon, center/radius or a GeoJSON geometry")
}

func geoJSONShape(obj map[string]any) (shape, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return shape{}, errors.New("invalid GeoJSON geometry")
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return shape{}, fmt.Errorf("invalid GeoJSON geometry: %v", err)
	}
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return shape{}, errors.New("GeoJSON polygon has no rings")
		}
		return polygonShape(geom[0])
	case orb.Point:
		r, err := radiusOf(obj)
		if err != nil {
			return shape{}, err
		}
		return shape{kind: shapeCircle, center: geom, radius: r}, nil
	default:
		return shape{}, fmt.Errorf("GeoJSON type %s is not supported", g.Type)
	}
}

func boxShape(a, b orb.Point) shape {
	return shape{kind: shapeBox, bound: orb.MultiPoint{a, b}.Bound()}
}

// polygonShape closes the ring if needed and requires at least three distinct
// vertices.
func polygonShape(ring orb.Ring) (shape, error) {
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return shape{}, errors.New("polygon needs at least three points")
	}
	for _, p := range ring {
		if !finite(p) {
			return shape{}, errors.New("polygon coordinates must be finite numbers")
		}
	}
	return shape{kind: shapePolygon, ring: ring}, nil
}

// centerOf reads "point", "center", lat/lng members or GeoJSON Point
// coordinates.
func centerOf(obj map[string]any) (orb.Point, error) {
	for _, key := range []string{"point", "center"} {
		if raw, ok := obj[key]; ok {
			return parsePoint(raw)
		}
	}
	if t, _ := obj["type"].(string); strings.EqualFold(t, "Point") {
		return parsePoint(obj["coordinates"])
	}
	if _, ok := obj["lat"]; ok {
		return parsePoint(obj)
	}
	return orb.Point{}, errors.New("expects a point, center or lat/lng")
}

func radiusOf(obj map[string]any) (float64, error) {
	for _, key := range []string{"distance", "radius", "max_distance"} {
		if raw, ok := obj[key]; ok {
			r, ok := toFloat(raw)
			if !ok || r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
				return 0, fmt.Errorf("%s must be a positive number", key)
			}
			return r, nil
		}
	}
	return 0, errors.New("expects a distance or radius")
}

// parsePoint accepts [x, y], {"x": .., "y": ..} and {"lat": .., "lng"|"lon": ..}.
// Latitude maps to y and longitude to x, as in GeoJSON.
func parsePoint(v any) (orb.Point, error) {
	var p orb.Point
	var okX, okY bool
	switch pv := v.(type) {
	case []any:
		if len(pv) != 2 {
			return p, errors.New("a point needs exactly two coordinates")
		}
		p[0], okX = toFloat(pv[0])
		p[1], okY = toFloat(pv[1])
	case map[string]any:
		if _, ok := pv["x"]; ok {
			p[0], okX = toFloat(pv["x"])
			p[1], okY = toFloat(pv["y"])
		} else {
			lng, ok := pv["lng"]
			if !ok {
				lng = pv["lon"]
			}
			p[0], okX = toFloat(lng)
			p[1], okY = toFloat(pv["lat"])
		}
	default:
		return p, errors.New("a point must be [x, y] or an object with coordinates")
	}
	if !okX || !okY || !finite(p) {
		return p, errors.New("point coordinates must be finite numbers")
	}
	return p, nil
}

func pointList(v any) ([]orb.Point, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, errors.New("expects a list of points")
	}
	pts := make([]orb.Point, 0, len(items))
	for _, item := range items {
		p, err := parsePoint(item)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func pointSQL(p orb.Point, a *ParameterAllocator) string {
	return "point(" + a.Placeholder(p.X()) + ", " + a.Placeholder(p.Y()) + ")"
}

// polygonText renders PostgreSQL's polygon input syntax: ((x1,y1),(x2,y2),...).
func polygonText(ring orb.Ring) string {
	parts := make([]string, len(ring))
	for i, p := range ring {
		parts[i] = "(" + formatCoord(p.X()) + "," + formatCoord(p.Y()) + ")"
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func finite(p orb.Point) bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
