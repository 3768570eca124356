package geocode

import (
	"sort"
	"strings"

	"github.com/carpool-lk/server/internal/lib/geo"
)

type place struct {
	name     string
	province string
	lat, lng float64
}

// Major towns, used when the remote geocoder is unreachable
var gazetteerPlaces = []place{
	{"Colombo", "Western Province", 6.9271, 79.8612},
	{"Kandy", "Central Province", 7.2906, 80.6337},
	{"Galle", "Southern Province", 6.0535, 80.2210},
	{"Jaffna", "Northern Province", 9.6615, 80.0255},
	{"Anuradhapura", "North Central Province", 8.3114, 80.4037},
	{"Negombo", "Western Province", 7.2008, 79.8737},
	{"Ella", "Uva Province", 6.8667, 81.0466},
	{"Kurunegala", "North Western Province", 7.4863, 80.3647},
	{"Matara", "Southern Province", 5.9549, 80.5550},
	{"Trincomalee", "Eastern Province", 8.5874, 81.2152},
	{"Batticaloa", "Eastern Province", 7.7310, 81.6747},
	{"Nuwara Eliya", "Central Province", 6.9497, 80.7891},
	{"Ratnapura", "Sabaragamuwa Province", 6.6828, 80.3992},
	{"Badulla", "Uva Province", 6.9934, 81.0550},
	{"Polonnaruwa", "North Central Province", 7.9403, 81.0188},
	{"Dambulla", "Central Province", 7.8742, 80.6511},
	{"Hambantota", "Southern Province", 6.1241, 81.1185},
	{"Kalutara", "Western Province", 6.5854, 79.9607},
	{"Vavuniya", "Northern Province", 8.7514, 80.4971},
	{"Puttalam", "North Western Province", 8.0362, 79.8283},
}

// Gazetteer is a static, case-insensitive index of towns
type Gazetteer struct {
	byName map[string]Location
	sorted []Location
}

// NewGazetteer builds the built-in town index
func NewGazetteer() *Gazetteer {
	g := &Gazetteer{byName: make(map[string]Location, len(gazetteerPlaces))}
	for _, p := range gazetteerPlaces {
		loc := Location{
			Name:    p.name,
			Address: p.name + ", " + p.province + ", Sri Lanka",
			Point:   geo.Point{Latitude: p.lat, Longitude: p.lng},
		}
		g.byName[normalize(p.name)] = loc
		g.sorted = append(g.sorted, loc)
	}
	sort.Slice(g.sorted, func(i, j int) bool { return g.sorted[i].Name < g.sorted[j].Name })
	return g
}

// Lookup finds a town by exact name
func (g *Gazetteer) Lookup(name string) (Location, bool) {
	loc, ok := g.byName[normalize(name)]
	return loc, ok
}

// Prefix lists towns whose name starts with query, alphabetically
func (g *Gazetteer) Prefix(query string, limit int) []Location {
	q := normalize(query)
	if q == "" || limit <= 0 {
		return []Location{}
	}
	out := make([]Location, 0, limit)
	for _, loc := range g.sorted {
		if len(out) >= limit {
			break
		}
		if strings.HasPrefix(normalize(loc.Name), q) {
			out = append(out, loc)
		}
	}
	return out
}

// All returns every town, alphabetically
func (g *Gazetteer) All() []Location {
	return append([]Location(nil), g.sorted...)
}
