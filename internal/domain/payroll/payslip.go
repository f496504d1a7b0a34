package payroll

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Payslip is the full document rendered for an employee. Deduction figures
// are promoted so the JSON shape stays flat.
type Payslip struct {
	CompanyName    string `json:"companyName"`
	CompanyAddress string `json:"companyAddress"`

	EmployeeName     string `json:"employeeName"`
	EmployeePosition string `json:"employeePosition"`
	EmployeeID       string `json:"employeeId"`
	EPFNumber        string `json:"epfNumber"`
	PCBNumber        string `json:"pcbNumber"`

	ResidenceStatus   string `json:"residenceStatus"`
	TypeOfResident    string `json:"typeOfResident"`
	MarriedStatus     string `json:"marriedStatus"`
	DependentChildren int    `json:"dependentChildren"`

	Month     string `json:"month"`
	Year      string `json:"year"`
	IssueDate string `json:"issueDate"`

	BasicSalary float64 `json:"basicSalary"`
	Bonus       float64 `json:"bonus"`

	EPFRate   string `json:"epfRate"`
	SOCSOType string `json:"socsoType"`
	EISType   string `json:"eisType"`

	Deductions

	PreviousSalaryTotal   float64 `json:"previousSalaryTotal"`
	PreviousPCB           float64 `json:"previousPcb"`
	PreviousEmployeeEPF   float64 `json:"previousEmployeeEpf"`
	PreviousEmployeeSOCSO float64 `json:"previousEmployeeSocso"`
}

type Totals struct {
	TotalEarnings   float64 `json:"totalEarnings"`
	TotalDeductions float64 `json:"totalDeductions"`
	NetIncome       float64 `json:"netIncome"`
	TaxableIncome   float64 `json:"taxableIncome"`
}

// Validate enforces the form-level rules a payslip must meet before it is
// rendered or stored.
func (p Payslip) Validate() error {
	var missing []string
	if strings.TrimSpace(p.CompanyName) == "" {
		missing = append(missing, "companyName")
	}
	if strings.TrimSpace(p.EmployeeName) == "" {
		missing = append(missing, "employeeName")
	}
	if p.BasicSalary <= 0 {
		missing = append(missing, "basicSalary")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func (p *Payslip) ApplyDefaults(now time.Time) {
	if p.ResidenceStatus == "" {
		p.ResidenceStatus = DefaultResidence
	}
	if p.TypeOfResident == "" {
		p.TypeOfResident = DefaultTypeOfResident
	}
	if p.MarriedStatus == "" {
		p.MarriedStatus = DefaultMaritalStatus
	}
	if p.EPFRate == "" {
		p.EPFRate = string(DefaultEPFRate)
	}
	if p.SOCSOType == "" {
		p.SOCSOType = string(DefaultSOCSOScheme)
	}
	if p.EISType == "" {
		p.EISType = string(DefaultEISMode)
	}
	if p.Month == "" {
		p.Month = now.Month().String()
	}
	if p.Year == "" {
		p.Year = now.Format("2006")
	}
	if p.IssueDate == "" {
		p.IssueDate = now.Format("2006-01-02")
	}
	if p.DependentChildren < 0 {
		p.DependentChildren = 0
	}
}

// ApplyDeductions replaces all eight statutory figures with computed ones
// when any employee-side figure is missing. A payslip that already carries
// every employee deduction keeps the caller's numbers.
func (p *Payslip) ApplyDeductions(rates RateTable) bool {
	if p.PCBDeduction != 0 && p.EPFEmployeeDeduction != 0 && p.SOCSOEmployee != 0 && p.EISEmployee != 0 {
		return false
	}
	p.Deductions = rates.Calculate(DeductionInput{
		BasicSalary: p.BasicSalary,
		Bonus:       p.Bonus,
		EPFRate:     ParseEPFRate(p.EPFRate),
		SOCSOScheme: ParseSOCSOScheme(p.SOCSOType),
		EISMode:     ParseEISMode(p.EISType),
	})
	return true
}

// Normalize sanitizes free text, fills defaults and computes missing
// deductions.
func (p *Payslip) Normalize(now time.Time, rates RateTable) {
	p.Sanitize()
	p.ApplyDefaults(now)
	p.ApplyDeductions(rates)
}

var textPolicy = bluemonday.StrictPolicy()

// Sanitize strips markup from every free-text field.
func (p *Payslip) Sanitize() {
	for _, field := range []*string{
		&p.CompanyName, &p.CompanyAddress,
		&p.EmployeeName, &p.EmployeePosition, &p.EmployeeID, &p.EPFNumber, &p.PCBNumber,
		&p.ResidenceStatus, &p.TypeOfResident, &p.MarriedStatus,
		&p.Month, &p.Year, &p.IssueDate,
		&p.EPFRate, &p.SOCSOType, &p.EISType,
	} {
		*field = cleanText(*field)
	}
}

func cleanText(s string) string {
	if s == "" {
		return s
	}
	// StrictPolicy escapes entities; templates escape again on output.
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func (p Payslip) Totals() Totals {
	earnings := TotalEarnings(p.BasicSalary, p.Bonus)
	return Totals{
		TotalEarnings:   earnings,
		TotalDeductions: TotalDeductions(p.PCBDeduction, p.EPFEmployeeDeduction, p.SOCSOEmployee, p.EISEmployee),
		NetIncome:       NetIncome(p.BasicSalary, p.Bonus, p.PCBDeduction, p.EPFEmployeeDeduction, p.SOCSOEmployee, p.EISEmployee),
		TaxableIncome:   earnings,
	}
}

func (p Payslip) Resident() bool {
	return p.ResidenceStatus == DefaultResidence
}
