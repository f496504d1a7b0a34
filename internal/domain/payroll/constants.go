package payroll

// EPFRate is the employee EPF contribution option.
type EPFRate string

const (
	EPFRateZero     EPFRate = "0%"
	EPFRateNine     EPFRate = "9%"
	EPFRateFiveHalf EPFRate = "5.5%"
	EPFRateEleven   EPFRate = "11%"
)

// ParseEPFRate maps unknown values to EPFRateEleven.
func ParseEPFRate(s string) EPFRate {
	switch r := EPFRate(s); r {
	case EPFRateZero, EPFRateNine, EPFRateFiveHalf, EPFRateEleven:
		return r
	default:
		return EPFRateEleven
	}
}

// SOCSOScheme selects which SOCSO schemes apply.
type SOCSOScheme string

const (
	SOCSOBoth   SOCSOScheme = "both"
	SOCSOInjury SOCSOScheme = "injury"
	SOCSONone   SOCSOScheme = "none"
)

// ParseSOCSOScheme maps unknown values to SOCSONone.
func ParseSOCSOScheme(s string) SOCSOScheme {
	switch sc := SOCSOScheme(s); sc {
	case SOCSOBoth, SOCSOInjury:
		return sc
	default:
		return SOCSONone
	}
}

// EISMode toggles EIS contributions.
type EISMode string

const (
	EISAuto EISMode = "auto"
	EISNone EISMode = "none"
)

// ParseEISMode maps anything other than "auto" to EISNone.
func ParseEISMode(s string) EISMode {
	if EISMode(s) == EISAuto {
		return EISAuto
	}
	return EISNone
}

const (
	DefaultEPFRate        = EPFRateEleven
	DefaultSOCSOScheme    = SOCSOBoth
	DefaultEISMode        = EISAuto
	DefaultResidence      = "resident"
	DefaultTypeOfResident = "Normal"
	DefaultMaritalStatus  = "Single"
)
