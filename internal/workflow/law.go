package workflow

// Law identifies one of the environmental statutes an inspection is filed
// under. The catalog is fixed; reference data (titles, sections) lives in the
// law service, not here.
type Law string

const (
	LawCleanAir        Law = "RA-8749"
	LawCleanWater      Law = "RA-9275"
	LawToxicSubstances Law = "RA-6969"
	LawSolidWaste      Law = "RA-9003"
	LawEIS             Law = "PD-1586"
)

// Laws lists the full catalog.
func Laws() []Law {
	return []Law{LawCleanAir, LawCleanWater, LawToxicSubstances, LawSolidWaste, LawEIS}
}

// Valid reports whether l is a known statute.
func (l Law) Valid() bool {
	switch l {
	case LawCleanAir, LawCleanWater, LawToxicSubstances, LawSolidWaste, LawEIS:
		return true
	}
	return false
}

// BypassesUnitReview reports whether the unit-head stage is skipped for l.
// The two non-general statutes route section review straight to monitoring.
func (l Law) BypassesUnitReview() bool {
	return l == LawToxicSubstances || l == LawSolidWaste
}
