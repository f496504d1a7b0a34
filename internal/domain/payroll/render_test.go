package payroll

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayslip() Payslip {
	p := Payslip{
		CompanyName:       "Acme Sdn Bhd",
		CompanyAddress:    "Level 3\nJalan Ampang",
		EmployeeName:      "Nur  Aisyah",
		EmployeePosition:  "Engineer",
		MarriedStatus:     "Married",
		DependentChildren: 2,
		BasicSalary:       5000,
		Bonus:             1000,
	}
	p.Normalize(fixedNow, DefaultRates())
	return p
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "payslip-Nur_Aisyah-March-2025.pdf", Filename(samplePayslip()))
	assert.Equal(t, "payslip.pdf", Filename(Payslip{}))
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, samplePayslip()))
	out := buf.String()

	assert.Contains(t, out, "Level 3<br>Jalan Ampang")
	assert.Contains(t, out, "<td>Bonus</td>")
	assert.Contains(t, out, "5132.00")
	assert.Contains(t, out, "868.00")
	assert.Contains(t, out, "Resident, Married, Dependent Children: 2")
	assert.Contains(t, out, "11% employee rate and 13.00% employer rate")
	assert.Contains(t, out, "RM4,000")
}

func TestRenderHTMLOmitsZeroBonusAndEscapes(t *testing.T) {
	p := samplePayslip()
	p.Bonus = 0
	p.CompanyName = "Tan & Co"
	p.ResidenceStatus = "non-resident"

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, p))
	out := buf.String()
	assert.NotContains(t, out, "<td>Bonus</td>")
	assert.Contains(t, out, "Tan &amp; Co")
	assert.Contains(t, out, "Non-resident")
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(&buf, samplePayslip()))
	assert.True(t, strings.HasPrefix(buf.String(), "%PDF-"))
	assert.Greater(t, buf.Len(), 1000)
}
