package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateDeductionsFullSchemes(t *testing.T) {
	got := CalculateDeductions(5000, 1000, "11%", "both", "auto")
	want := Deductions{
		PCBDeduction:         180,
		EPFEmployeeDeduction: 660,
		SOCSOEmployee:        20,
		EISEmployee:          8,
		EPFEmployer:          780,
		SOCSOEmployer:        70,
		EISEmployer:          8,
		HRDF:                 25,
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCalculateDeductionsInjuryOnly(t *testing.T) {
	got := CalculateDeductions(3000, 0, "9%", "injury", "none")
	want := Deductions{
		PCBDeduction:         90,
		EPFEmployeeDeduction: 270,
		SOCSOEmployee:        0,
		EISEmployee:          0,
		EPFEmployer:          390,
		SOCSOEmployer:        37.5,
		EISEmployer:          0,
		HRDF:                 15,
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestResolveEPFEmployeeRate(t *testing.T) {
	cases := map[string]float64{
		"0%":     0,
		"9%":     0.09,
		"5.5%":   0.055,
		"11%":    0.11,
		"":       0.11,
		"12%":    0.11,
		"eleven": 0.11,
		" 11% ":  0.11,
	}
	for input, want := range cases {
		if got := ResolveEPFEmployeeRate(input); got != want {
			t.Fatalf("epfRate %q: expected %v, got %v", input, want, got)
		}
	}
}

func TestResolveSOCSORates(t *testing.T) {
	cases := []struct {
		input    string
		employee float64
		employer float64
	}{
		{"both", 0.005, 0.0175},
		{"injury", 0, 0.0125},
		{"none", 0, 0},
		{"", 0, 0},
		{"BOTH", 0, 0},
	}
	for _, tc := range cases {
		employee, employer := ResolveSOCSORates(tc.input)
		if employee != tc.employee || employer != tc.employer {
			t.Fatalf("socsoType %q: expected (%v,%v), got (%v,%v)", tc.input, tc.employee, tc.employer, employee, employer)
		}
	}
}

func TestUnknownEISModeDisablesEIS(t *testing.T) {
	got := CalculateDeductions(3000, 0, "11%", "both", "Auto")
	if got.EISEmployee != 0 || got.EISEmployer != 0 {
		t.Fatalf("expected no EIS, got %+v", got)
	}
}

func TestContributionCap(t *testing.T) {
	capped := CalculateDeductions(4000, 500, "11%", "both", "auto")
	for _, salary := range []float64{4000.01, 4500, 10000, 250000} {
		got := CalculateDeductions(salary, 500, "11%", "both", "auto")
		if got.SOCSOEmployee != capped.SOCSOEmployee || got.SOCSOEmployer != capped.SOCSOEmployer {
			t.Fatalf("salary %v: SOCSO should be capped, got %+v", salary, got)
		}
		if got.EISEmployee != capped.EISEmployee || got.EISEmployer != capped.EISEmployer {
			t.Fatalf("salary %v: EIS should be capped, got %+v", salary, got)
		}
	}
}

func TestBonusExcludedFromSOCSOAndHRDF(t *testing.T) {
	base := CalculateDeductions(2000, 0, "11%", "both", "auto")
	withBonus := CalculateDeductions(2000, 5000, "11%", "both", "auto")
	if base.SOCSOEmployee != withBonus.SOCSOEmployee || base.EISEmployee != withBonus.EISEmployee || base.HRDF != withBonus.HRDF {
		t.Fatalf("bonus should not change SOCSO, EIS or HRDF: %+v vs %+v", base, withBonus)
	}
	if withBonus.EPFEmployeeDeduction != 770 || withBonus.PCBDeduction != 210 {
		t.Fatalf("bonus should count towards EPF and PCB, got %+v", withBonus)
	}
}

func TestEPFIsUncapped(t *testing.T) {
	for _, tc := range []struct {
		salary, bonus float64
		rate          string
	}{
		{8000, 2000, "11%"},
		{12345.67, 0, "9%"},
		{4000, 4000, "5.5%"},
	} {
		got := CalculateDeductions(tc.salary, tc.bonus, tc.rate, "both", "auto")
		rate := DefaultRates().EPFEmployeeRate(ParseEPFRate(tc.rate))
		total := decimal.NewFromFloat(tc.salary).Add(decimal.NewFromFloat(tc.bonus))
		want := total.Mul(rate).Round(2).InexactFloat64()
		if got.EPFEmployeeDeduction != want {
			t.Fatalf("expected EPF %v for %+v, got %v", want, tc, got.EPFEmployeeDeduction)
		}
	}
}

func TestRoundingHalfAwayFromZero(t *testing.T) {
	if got := CalculateDeductions(1050, 0, "9%", "both", "auto").EPFEmployeeDeduction; got != 94.5 {
		t.Fatalf("expected 94.50, got %v", got)
	}
	got := CalculateDeductions(1001, 0, "11%", "both", "auto")
	if got.SOCSOEmployee != 5.01 {
		t.Fatalf("expected socsoEmployee 5.01, got %v", got.SOCSOEmployee)
	}
	if got.HRDF != 5.01 {
		t.Fatalf("expected hrdf 5.01, got %v", got.HRDF)
	}
	// 1234.5 * 5.5% = 67.8975
	if got := CalculateDeductions(1234.5, 0, "5.5%", "none", "none").EPFEmployeeDeduction; got != 67.9 {
		t.Fatalf("expected 67.90, got %v", got)
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	first := CalculateDeductions(3210.55, 123.45, "5.5%", "injury", "auto")
	for i := 0; i < 100; i++ {
		if again := CalculateDeductions(3210.55, 123.45, "5.5%", "injury", "auto"); again != first {
			t.Fatalf("iteration %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestZeroIncome(t *testing.T) {
	if got := CalculateDeductions(0, 0, "", "", ""); got != (Deductions{}) {
		t.Fatalf("expected zero deductions, got %+v", got)
	}
}

func TestCompanionTotals(t *testing.T) {
	if got := NetIncome(5000, 1000, 180, 660, 20, 8); got != 5132 {
		t.Fatalf("expected net 5132, got %v", got)
	}
	if got := TotalDeductions(180, 660, 20, 8); got != 868 {
		t.Fatalf("expected deductions 868, got %v", got)
	}
	if got := TotalEarnings(5000, 1000); got != 6000 {
		t.Fatalf("expected earnings 6000, got %v", got)
	}
	if got := TotalDeductions(0.1, 0.2, 0, 0); got != 0.3 {
		t.Fatalf("expected 0.3 without float drift, got %v", got)
	}
}

func TestCustomRateTable(t *testing.T) {
	rates := DefaultRates()
	rates.ContributionCap = decimal.NewFromInt(5000)
	got := rates.Calculate(DeductionInput{BasicSalary: 6000, EPFRate: EPFRateEleven, SOCSOScheme: SOCSOBoth, EISMode: EISAuto})
	if got.SOCSOEmployee != 25 || got.EISEmployee != 10 {
		t.Fatalf("expected cap of 5000 to apply, got %+v", got)
	}
	if DefaultRates().ContributionCap.IntPart() != 4000 {
		t.Fatal("DefaultRates must not be affected by callers")
	}
}
