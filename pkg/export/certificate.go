package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate holds the fields rendered onto a badge certificate.
type Certificate struct {
	RecipientName string
	CourseTitle   string
	Issuer        string
	TokenID       string
	SerialNumber  int64
	TransactionID string
	IssuedAt      time.Time
}

// CertificateRenderer renders badge certificates as PDF documents.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces a single-page landscape certificate. The ledger references
// are printed so the holder can verify the mint independently.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if cert.RecipientName == "" || cert.CourseTitle == "" {
		return nil, fmt.Errorf("certificate requires recipient and course title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 26)
	pdf.CellFormat(0, 16, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, cert.RecipientName, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(cert.CourseTitle), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	issued := cert.IssuedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Issued by %s on %s", cert.Issuer, issued.Format("2 January 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Courier", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Token: %s  Serial: %d", cert.TokenID, cert.SerialNumber), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Transaction: %s", cert.TransactionID), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
