package payroll

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const employerEPFRateLabel = "13.00%"

// Filename is the attachment name used for PDF downloads.
func Filename(p Payslip) string {
	parts := []string{"payslip"}
	for _, v := range []string{p.EmployeeName, p.Month, p.Year} {
		if s := strings.Join(strings.Fields(v), "_"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-") + ".pdf"
}

type view struct {
	Payslip
	Totals
	EmployerEPFRate string
}

func newView(p Payslip) view {
	return view{Payslip: p, Totals: p.Totals(), EmployerEPFRate: employerEPFRateLabel}
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func residencyLabel(p Payslip) string {
	if p.Resident() {
		return "Resident"
	}
	return "Non-resident"
}

var htmlTemplate = template.Must(template.New("payslip").Funcs(template.FuncMap{
	"money":     money,
	"lines":     func(s string) []string { return strings.Split(s, "\n") },
	"residency": residencyLabel,
}).Parse(payslipHTML))

// RenderHTML writes a standalone HTML payslip.
func RenderHTML(w io.Writer, p Payslip) error {
	return htmlTemplate.Execute(w, newView(p))
}

// RenderPDF writes an A4 payslip to w.
func RenderPDF(w io.Writer, p Payslip) error {
	v := newView(p)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Payslip - %s - %s %s", p.EmployeeName, p.Month, p.Year), true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFillColor(76, 175, 80)
	pdf.Rect(0, 0, 210, 4, "F")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Payslip", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s %s  |  Issued %s", p.Month, p.Year, p.IssueDate)), "", 1, "L", false, 0, "")
	pdf.SetTextColor(51, 51, 51)
	pdf.Ln(4)

	sectionTitle := func(title string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(76, 175, 80)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetTextColor(51, 51, 51)
		pdf.SetFont("Helvetica", "", 10)
	}
	line := func(text string) {
		pdf.CellFormat(0, 5, tr(text), "", 1, "L", false, 0, "")
	}
	row := func(label, amount string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(140, 7, tr(label), "B", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, amount, "B", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}

	sectionTitle("Company")
	line(p.CompanyName)
	for _, l := range strings.Split(p.CompanyAddress, "\n") {
		if strings.TrimSpace(l) != "" {
			line(l)
		}
	}
	pdf.Ln(3)

	sectionTitle("Employee")
	line(p.EmployeeName)
	if p.EmployeePosition != "" {
		line(p.EmployeePosition)
	}
	if p.EmployeeID != "" {
		line("IC/Passport: " + p.EmployeeID)
	}
	if p.EPFNumber != "" {
		line("EPF No: " + p.EPFNumber)
	}
	if p.PCBNumber != "" {
		line("Tax No: " + p.PCBNumber)
	}
	pdf.Ln(4)

	sectionTitle("Earnings")
	row("Basic Salary", money(p.BasicSalary), false)
	if p.Bonus > 0 {
		row("Bonus", money(p.Bonus), false)
	}
	row("Total Earnings", money(v.TotalEarnings), true)
	pdf.Ln(3)

	sectionTitle("Deductions")
	row("PCB (1)", money(p.PCBDeduction), false)
	row("Employee EPF (2)", money(p.EPFEmployeeDeduction), false)
	row("Employee SOCSO", money(p.SOCSOEmployee), false)
	row("Employee EIS", money(p.EISEmployee), false)
	row("Total Deductions", money(v.TotalDeductions), true)
	pdf.Ln(3)

	pdf.SetFillColor(76, 175, 80)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(140, 9, "Net Income", "", 0, "L", true, 0, "")
	pdf.CellFormat(40, 9, money(v.NetIncome), "", 1, "R", true, 0, "")
	pdf.SetTextColor(51, 51, 51)
	row("Taxable Income", money(v.TaxableIncome), false)
	pdf.Ln(4)

	sectionTitle("Employer Contributions")
	row("EPF (2)", money(p.EPFEmployer), false)
	row("SOCSO", money(p.SOCSOEmployer), false)
	row("EIS", money(p.EISEmployer), false)
	row("HRDF", money(p.HRDF), false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(102, 102, 102)
	for _, note := range footnotes(p) {
		pdf.MultiCell(0, 4, tr(note), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func footnotes(p Payslip) []string {
	return []string{
		fmt.Sprintf("(1) Tax calculations are based on employee attributes: %s, %s, Dependent Children: %d",
			residencyLabel(p), p.MarriedStatus, p.DependentChildren),
		fmt.Sprintf("(2) Contributions for EPF are calculated based on %s employee rate and %s employer rate",
			p.EPFRate, employerEPFRateLabel),
		"(3) SOCSO and EIS contributions are capped at a salary of RM4,000",
	}
}

const payslipHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Payslip - {{.EmployeeName}} - {{.Month}} {{.Year}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; line-height: 1.4; }
.payslip { max-width: 900px; margin: 0 auto; border: 1px solid #ddd; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
.header-bar { background-color: #4CAF50; height: 10px; width: 100%; }
.payslip-content { padding: 20px; }
.header-section { display: flex; justify-content: space-between; margin-bottom: 20px; padding-bottom: 15px; border-bottom: 1px solid #eee; }
.header-column { flex: 1; }
.payslip-title { font-size: 20px; font-weight: bold; margin: 0 0 5px 0; }
.payslip-date { color: #666; margin: 0; font-size: 14px; }
.section-title { color: #4CAF50; margin: 0 0 10px 0; font-size: 16px; font-weight: 600; }
.company-info p, .employee-info p { margin: 3px 0; font-size: 14px; }
table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
th, td { padding: 8px 10px; text-align: left; font-size: 14px; border-bottom: 1px solid #eee; }
th { color: #4CAF50; font-weight: 600; }
.amount-column { text-align: right; }
.total-row td { font-weight: bold; border-top: 1px solid #ddd; }
.net-income-row { background-color: #4CAF50; color: white; font-weight: bold; padding: 10px; display: flex; justify-content: space-between; }
.taxable-income-row { padding: 10px; display: flex; justify-content: space-between; border-bottom: 1px solid #eee; }
.employer-contributions { display: flex; flex-wrap: wrap; }
.employer-column { flex: 1; min-width: 150px; margin-right: 20px; margin-bottom: 15px; }
.employer-column h3 { margin: 0 0 8px 0; font-size: 14px; font-weight: 600; }
.footnotes { margin-top: 20px; font-size: 12px; color: #666; }
.footnote { margin: 3px 0; }
</style>
</head>
<body>
<div class="payslip">
  <div class="header-bar"></div>
  <div class="payslip-content">
    <div class="header-section">
      <div class="header-column">
        <p class="payslip-title">Payslip</p>
        <p class="payslip-date">{{.Month}} {{.Year}} &middot; Issued {{.IssueDate}}</p>
      </div>
    </div>
    <div class="header-section">
      <div class="header-column company-info">
        <h2 class="section-title">Company</h2>
        <p><strong>{{.CompanyName}}</strong></p>
        <p>{{range $i, $l := lines .CompanyAddress}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
      </div>
      <div class="header-column employee-info">
        <h2 class="section-title">Employee</h2>
        <p><strong>{{.EmployeeName}}</strong></p>
        {{- if .EmployeePosition}}<p>{{.EmployeePosition}}</p>{{end}}
        {{- if .EmployeeID}}<p>IC/Passport: {{.EmployeeID}}</p>{{end}}
        {{- if .EPFNumber}}<p>EPF No: {{.EPFNumber}}</p>{{end}}
        {{- if .PCBNumber}}<p>Tax No: {{.PCBNumber}}</p>{{end}}
      </div>
    </div>
    <table>
      <thead><tr><th style="width: 60%;">Earnings</th><th style="width: 20%;"></th><th style="width: 20%;" class="amount-column"></th></tr></thead>
      <tbody>
        <tr><td>Basic Salary</td><td></td><td class="amount-column">{{money .BasicSalary}}</td></tr>
        {{- if gt .Bonus 0.0}}
        <tr><td>Bonus</td><td></td><td class="amount-column">{{money .Bonus}}</td></tr>
        {{- end}}
        <tr class="total-row"><td>Total Earnings</td><td></td><td class="amount-column">{{money .TotalEarnings}}</td></tr>
      </tbody>
    </table>
    <table>
      <thead><tr><th style="width: 60%;">Deductions</th><th style="width: 20%;"></th><th style="width: 20%;" class="amount-column"></th></tr></thead>
      <tbody>
        <tr><td>PCB <sup>1</sup></td><td></td><td class="amount-column">{{money .PCBDeduction}}</td></tr>
        <tr><td>Employee EPF <sup>2</sup></td><td></td><td class="amount-column">{{money .EPFEmployeeDeduction}}</td></tr>
        <tr><td>Employee SOCSO</td><td></td><td class="amount-column">{{money .SOCSOEmployee}}</td></tr>
        <tr><td>Employee EIS</td><td></td><td class="amount-column">{{money .EISEmployee}}</td></tr>
        <tr class="total-row"><td>Total Deductions</td><td></td><td class="amount-column">{{money .TotalDeductions}}</td></tr>
      </tbody>
    </table>
    <div class="net-income-row"><span>Net Income</span><span>{{money .NetIncome}}</span></div>
    <div class="taxable-income-row"><span>Taxable Income</span><span>{{money .TaxableIncome}}</span></div>
    <div style="margin-top: 20px;">
      <h2 class="section-title">Employer Contributions</h2>
      <div class="employer-contributions">
        <div class="employer-column"><h3>EPF <sup>2</sup></h3><p>{{money .EPFEmployer}}</p></div>
        <div class="employer-column"><h3>SOCSO</h3><p>{{money .SOCSOEmployer}}</p></div>
        <div class="employer-column"><h3>EIS</h3><p>{{money .EISEmployer}}</p></div>
        <div class="employer-column"><h3>HRDF</h3><p>{{money .HRDF}}</p></div>
      </div>
    </div>
    <div class="footnotes">
      <p class="footnote"><sup>1</sup> Tax calculations are based on employee attributes: {{residency .Payslip}}, {{.MarriedStatus}}, Dependent Children: {{.DependentChildren}}</p>
      <p class="footnote"><sup>2</sup> Contributions for EPF are calculated based on {{.EPFRate}} employee rate and {{.EmployerEPFRate}} employer rate</p>
      <p class="footnote"><sup>3</sup> SOCSO and EIS contributions are capped at a salary of RM4,000</p>
    </div>
  </div>
</div>
</body>
</html>
`
