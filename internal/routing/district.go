// Package routing derives an inspection's jurisdiction from its
// establishment address and resolves the eligible personnel for the next
// workflow stage.
package routing

import (
	"strings"

	"github.com/ecogov/be-inspections/internal/apperrors"
)

// districtTable maps "province|city" to the enforcement district. The
// mapping is a deterministic lookup, never geocoding; city entries win over
// the province-level default.
var districtTable = map[string]string{
	"metro manila|caloocan":    "District 1",
	"metro manila|malabon":     "District 1",
	"metro manila|navotas":     "District 1",
	"metro manila|valenzuela":  "District 1",
	"metro manila|quezon city": "District 2",
	"metro manila|marikina":    "District 2",
	"metro manila|pasig":       "District 2",
	"metro manila|manila":      "District 3",
	"metro manila|makati":      "District 4",
	"metro manila|pasay":       "District 4",
	"metro manila|taguig":      "District 4",
	"metro manila|paranaque":   "District 4",
	"metro manila|las pinas":   "District 4",
	"metro manila|muntinlupa":  "District 4",
	"rizal|antipolo":           "District 2",
	"bulacan|malolos":          "District 1",
	"cavite|bacoor":            "District 4",
	"laguna|calamba":           "District 4",
}

// provinceDefaults covers cities without an explicit entry.
var provinceDefaults = map[string]string{
	"metro manila": "District 3",
	"rizal":        "District 2",
	"bulacan":      "District 1",
	"cavite":       "District 4",
	"laguna":       "District 4",
	"batangas":     "District 4",
	"pampanga":     "District 1",
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DistrictFor derives the enforcement district from an establishment's
// province and city. The result is computed once at creation and stored on
// the inspection; it is never user-editable.
func DistrictFor(province, city string) (string, error) {
	p, c := normalize(province), normalize(city)
	if p == "" {
		return "", apperrors.InvalidInput("province", "required to derive district")
	}
	if d, ok := districtTable[p+"|"+c]; ok {
		return d, nil
	}
	if d, ok := provinceDefaults[p]; ok {
		return d, nil
	}
	return "", apperrors.InvalidInput("province", "no district mapping for "+province)
}
