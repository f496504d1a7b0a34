package payroll

import "github.com/shopspring/decimal"

// Deductions holds the statutory figures for one pay period, each rounded
// to two decimal places.
type Deductions struct {
	PCBDeduction         float64 `json:"pcbDeduction"`
	EPFEmployeeDeduction float64 `json:"epfEmployeeDeduction"`
	SOCSOEmployee        float64 `json:"socsoEmployee"`
	EISEmployee          float64 `json:"eisEmployee"`
	EPFEmployer          float64 `json:"epfEmployer"`
	SOCSOEmployer        float64 `json:"socsoEmployer"`
	EISEmployer          float64 `json:"eisEmployer"`
	HRDF                 float64 `json:"hrdf"`
}

type DeductionInput struct {
	BasicSalary float64
	Bonus       float64
	EPFRate     EPFRate
	SOCSOScheme SOCSOScheme
	EISMode     EISMode
}

type SOCSORates struct {
	Employee decimal.Decimal
	Employer decimal.Decimal
}

// RateTable holds the contribution rates and the SOCSO/EIS wage ceiling.
type RateTable struct {
	EPFEmployee     map[EPFRate]decimal.Decimal
	EPFEmployer     decimal.Decimal
	SOCSO           map[SOCSOScheme]SOCSORates
	EIS             decimal.Decimal
	PCB             decimal.Decimal
	HRDF            decimal.Decimal
	ContributionCap decimal.Decimal
}

// DefaultRates returns the rates currently applied by the service.
func DefaultRates() RateTable {
	return RateTable{
		EPFEmployee: map[EPFRate]decimal.Decimal{
			EPFRateZero:     decimal.Zero,
			EPFRateNine:     decimal.RequireFromString("0.09"),
			EPFRateFiveHalf: decimal.RequireFromString("0.055"),
			EPFRateEleven:   decimal.RequireFromString("0.11"),
		},
		EPFEmployer: decimal.RequireFromString("0.13"),
		SOCSO: map[SOCSOScheme]SOCSORates{
			SOCSOBoth:   {Employee: decimal.RequireFromString("0.005"), Employer: decimal.RequireFromString("0.0175")},
			SOCSOInjury: {Employee: decimal.Zero, Employer: decimal.RequireFromString("0.0125")},
			SOCSONone:   {Employee: decimal.Zero, Employer: decimal.Zero},
		},
		EIS:             decimal.RequireFromString("0.002"),
		PCB:             decimal.RequireFromString("0.03"),
		HRDF:            decimal.RequireFromString("0.005"),
		ContributionCap: decimal.NewFromInt(4000),
	}
}

func (t RateTable) EPFEmployeeRate(rate EPFRate) decimal.Decimal {
	if r, ok := t.EPFEmployee[rate]; ok {
		return r
	}
	return t.EPFEmployee[EPFRateEleven]
}

func (t RateTable) SOCSORates(scheme SOCSOScheme) SOCSORates {
	if r, ok := t.SOCSO[scheme]; ok {
		return r
	}
	return SOCSORates{Employee: decimal.Zero, Employer: decimal.Zero}
}

func (t RateTable) EISRate(mode EISMode) decimal.Decimal {
	if mode == EISAuto {
		return t.EIS
	}
	return decimal.Zero
}

// Calculate never fails. EPF and PCB apply to salary plus bonus; SOCSO and
// EIS apply to basic salary up to the contribution cap; HRDF applies to the
// full basic salary.
func (t RateTable) Calculate(in DeductionInput) Deductions {
	salary := decimal.NewFromFloat(in.BasicSalary)
	totalIncome := salary.Add(decimal.NewFromFloat(in.Bonus))
	capped := decimal.Min(salary, t.ContributionCap)

	socso := t.SOCSORates(in.SOCSOScheme)
	eis := round2(capped.Mul(t.EISRate(in.EISMode)))

	return Deductions{
		PCBDeduction:         round2(totalIncome.Mul(t.PCB)),
		EPFEmployeeDeduction: round2(totalIncome.Mul(t.EPFEmployeeRate(in.EPFRate))),
		SOCSOEmployee:        round2(capped.Mul(socso.Employee)),
		EISEmployee:          eis,
		EPFEmployer:          round2(totalIncome.Mul(t.EPFEmployer)),
		SOCSOEmployer:        round2(capped.Mul(socso.Employer)),
		EISEmployer:          eis,
		HRDF:                 round2(salary.Mul(t.HRDF)),
	}
}

// CalculateDeductions applies DefaultRates to raw option strings. Unknown
// options degrade to their documented defaults instead of failing.
func CalculateDeductions(basicSalary, bonus float64, epfRate, socsoType, eisType string) Deductions {
	return DefaultRates().Calculate(DeductionInput{
		BasicSalary: basicSalary,
		Bonus:       bonus,
		EPFRate:     ParseEPFRate(epfRate),
		SOCSOScheme: ParseSOCSOScheme(socsoType),
		EISMode:     ParseEISMode(eisType),
	})
}

func ResolveEPFEmployeeRate(epfRate string) float64 {
	return DefaultRates().EPFEmployeeRate(ParseEPFRate(epfRate)).InexactFloat64()
}

// ResolveSOCSORates returns the employee and employer SOCSO rates.
func ResolveSOCSORates(socsoType string) (employee, employer float64) {
	r := DefaultRates().SOCSORates(ParseSOCSOScheme(socsoType))
	return r.Employee.InexactFloat64(), r.Employer.InexactFloat64()
}

func TotalEarnings(salary, bonus float64) float64 {
	return round2(decimal.NewFromFloat(salary).Add(decimal.NewFromFloat(bonus)))
}

func TotalDeductions(pcb, epfEmployee, socsoEmployee, eisEmployee float64) float64 {
	return round2(sum(pcb, epfEmployee, socsoEmployee, eisEmployee))
}

func NetIncome(salary, bonus, pcb, epfEmployee, socsoEmployee, eisEmployee float64) float64 {
	earnings := sum(salary, bonus)
	return round2(earnings.Sub(sum(pcb, epfEmployee, socsoEmployee, eisEmployee)))
}

func sum(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total
}

// round2 rounds half away from zero.
func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
