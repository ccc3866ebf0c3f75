package geo

import "strings"

// ClusterPrecision is the geohash length used to group map markers.
// Six characters is roughly a 1.2 km x 0.6 km cell.
const ClusterPrecision = 6

// base32 is the geohash alphabet (no a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Geohash encodes loc into a geohash of the given length.
// A precision below 1 falls back to ClusterPrecision.
func Geohash(loc Location, precision int) string {
	if precision < 1 {
		precision = ClusterPrecision
	}

	latRange := [2]float64{-90, 90}
	lngRange := [2]float64{-180, 180}

	var sb strings.Builder
	sb.Grow(precision)

	var bit, ch uint
	lngTurn := true
	for sb.Len() < precision {
		rng, v := &latRange, loc.lat
		if lngTurn {
			rng, v = &lngRange, loc.lng
		}

		mid := (rng[0] + rng[1]) / 2
		if v >= mid {
			ch |= 1 << (4 - bit)
			rng[0] = mid
		} else {
			rng[1] = mid
		}

		lngTurn = !lngTurn
		bit++
		if bit == 5 {
			sb.WriteByte(base32[ch])
			bit, ch = 0, 0
		}
	}

	return sb.String()
}

// GeohashCell truncates a geohash to precision after validating its alphabet.
// It returns "" for empty or invalid input.
func GeohashCell(hash string, precision int) string {
	if hash == "" || precision < 1 {
		return ""
	}

	hash = strings.ToLower(hash)
	for _, c := range hash {
		if !strings.ContainsRune(base32, c) {
			return ""
		}
	}

	if len(hash) <= precision {
		return hash
	}
	return hash[:precision]
}
