// Package bodymap derives body-diagram region identifiers from normalized
// body-part and body-side codes. It is a static lookup with no state; callers
// that receive an empty result should fall back to DefaultRegion rather than
// rendering nothing.
package bodymap

import "strings"

// Region identifies one drawable zone in the body-injury diagram.
type Region string

// Side is the laterality tag carried by a region.
type Side int

const (
	SideNone Side = iota // bilateral or unsided regions
	SideLeft
	SideRight
)

// taggedRegion pairs a region identifier with its laterality.
type taggedRegion struct {
	Region Region
	Side   Side
}

// partRegions maps a normalized body-part code to its diagram regions.
// Keys are lower-cased; codes arrive from reference tables in title case.
var partRegions = map[string][]taggedRegion{
	"head": {
		{"head-front", SideNone},
		{"head-back", SideNone},
	},
	"face": {
		{"head-front", SideNone},
	},
	"eye": {
		{"eye-left", SideLeft},
		{"eye-right", SideRight},
	},
	"ear": {
		{"ear-left", SideLeft},
		{"ear-right", SideRight},
	},
	"neck": {
		{"neck-front", SideNone},
		{"neck-back", SideNone},
	},
	"shoulder": {
		{"shoulder-left", SideLeft},
		{"shoulder-right", SideRight},
	},
	"upper arm": {
		{"upper-arm-left", SideLeft},
		{"upper-arm-right", SideRight},
	},
	"elbow": {
		{"elbow-left", SideLeft},
		{"elbow-right", SideRight},
	},
	"forearm": {
		{"forearm-left", SideLeft},
		{"forearm-right", SideRight},
	},
	"wrist": {
		{"wrist-left", SideLeft},
		{"wrist-right", SideRight},
	},
	"hand": {
		{"hand-left", SideLeft},
		{"hand-right", SideRight},
	},
	"finger": {
		{"hand-left", SideLeft},
		{"hand-right", SideRight},
	},
	"chest": {
		{"chest", SideNone},
	},
	"ribs": {
		{"chest", SideNone},
	},
	"abdomen": {
		{"abdomen", SideNone},
	},
	"groin": {
		{"pelvis", SideNone},
	},
	"upper back": {
		{"back-upper", SideNone},
	},
	"lower back": {
		{"back-lower", SideNone},
	},
	"back": {
		{"back-upper", SideNone},
		{"back-lower", SideNone},
	},
	"hip": {
		{"hip-left", SideLeft},
		{"hip-right", SideRight},
	},
	"thigh": {
		{"thigh-left", SideLeft},
		{"thigh-right", SideRight},
	},
	"knee": {
		{"knee-left", SideLeft},
		{"knee-right", SideRight},
	},
	"lower leg": {
		{"lower-leg-left", SideLeft},
		{"lower-leg-right", SideRight},
	},
	"ankle": {
		{"ankle-left", SideLeft},
		{"ankle-right", SideRight},
	},
	"foot": {
		{"foot-left", SideLeft},
		{"foot-right", SideRight},
	},
	"toe": {
		{"foot-left", SideLeft},
		{"foot-right", SideRight},
	},
}

// ParseSide normalizes a body-side code. Anything other than left or right
// (including "Both", "N/A" and empty) is treated as unsided.
func ParseSide(code string) Side {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "left", "l":
		return SideLeft
	case "right", "r":
		return SideRight
	default:
		return SideNone
	}
}

// RegionsFor returns the diagram regions for a body-part code, filtered by
// the side code. Side filtering only removes regions tagged with the
// opposite side; bilateral and unsided regions always pass through. Unknown
// part codes yield an empty slice.
func RegionsFor(partCode, sideCode string) []Region {
	tagged, ok := partRegions[strings.ToLower(strings.TrimSpace(partCode))]
	if !ok {
		return nil
	}

	side := ParseSide(sideCode)
	regions := make([]Region, 0, len(tagged))
	for _, t := range tagged {
		if side != SideNone && t.Side != SideNone && t.Side != side {
			continue
		}
		regions = append(regions, t.Region)
	}
	return regions
}

// DefaultRegion is the fallback zone rendered when a part code is unknown.
func DefaultRegion() Region {
	return "chest"
}

// KnownParts returns the body-part codes present in the lookup table, for
// reference-table validation.
func KnownParts() []string {
	parts := make([]string, 0, len(partRegions))
	for p := range partRegions {
		parts = append(parts, p)
	}
	return parts
}
