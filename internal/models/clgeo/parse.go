package clgeo

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var asnPattern = regexp.MustCompile(`^AS\d+$`)

// ParseLoc découpe "lat,lon" en deux nombres indépendants. Une moitié illisible
// reste nil, l'autre est conservée.
func ParseLoc(loc string) (lat, lon *float64) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	return parseCoordinate(parts[0]), parseCoordinate(parts[1])
}

func parseCoordinate(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseASN extrait "AS15169" de "AS15169 Google LLC". Sans correspondance le
// résultat est nil, l'organisation brute est gardée ailleurs.
func ParseASN(org string) *string {
	fields := strings.Fields(org)
	if len(fields) == 0 || !asnPattern.MatchString(fields[0]) {
		return nil
	}
	return strPtr(fields[0])
}

// optFloat accepte un nombre JSON ou une chaîne numérique. Une valeur illisible
// laisse le champ absent au lieu de faire échouer le décodage.
type optFloat struct {
	Value *float64
}

func (o *optFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	} else {
		s = string(data)
	}
	o.Value = parseCoordinate(s)
	return nil
}
