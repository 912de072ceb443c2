package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is one of the currencies a budget line may be quoted in.
type Currency string

const (
	MXN Currency = "MXN"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// BaseCurrency is the currency every total is reported in.
const BaseCurrency = MXN

// DefaultSuffix is the remesa suffix used when a file or caller gives none.
const DefaultSuffix = "MN"

// Status is the lifecycle state of a Remesa. Values match the stored form.
type Status string

const (
	StatusDraft         Status = "borrador"
	StatusSent          Status = "enviada"
	StatusPartiallyPaid Status = "pagada_parcial"
	StatusPaid          Status = "pagada"
)

// Section splits remesa items by payment method.
type Section string

const (
	SectionTransfer Section = "A" // bank transfer
	SectionCheck    Section = "B" // check or cash
)

const (
	PaymentTransfer = "transferencia"
	PaymentCheck    = "cheque"
)

type (
	Project struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		OwnerName string    `json:"owner_name"`
		Address   string    `json:"address,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	Category struct {
		ID        string `json:"id"`
		ProjectID string `json:"project_id"`
		Name      string `json:"name"`
	}

	Concept struct {
		ID         string `json:"id"`
		CategoryID string `json:"category_id"`
		Name       string `json:"name"`
	}

	Contractor struct {
		ID            string `json:"id"`
		ProjectID     string `json:"project_id"`
		Name          string `json:"name"`
		Bank          string `json:"bank,omitempty"`
		AccountNumber string `json:"account_number,omitempty"`
		CLABE         string `json:"clabe,omitempty"`
		Notes         string `json:"notes,omitempty"`
	}

	ExchangeRate struct {
		ID       string          `json:"id"`
		Date     time.Time       `json:"date"`
		Currency Currency        `json:"currency"`
		Rate     decimal.Decimal `json:"rate"`
	}

	BudgetItem struct {
		ID              string          `json:"id"`
		ProjectID       string          `json:"project_id"`
		CategoryID      string          `json:"category_id,omitempty"`
		ConceptID       string          `json:"concept_id,omitempty"`
		CategoryName    string          `json:"category_name,omitempty"`
		ConceptName     string          `json:"concept_name,omitempty"`
		Detail          string          `json:"detail,omitempty"`
		Supplier        string          `json:"supplier,omitempty"`
		Unit            string          `json:"unit,omitempty"`
		Quantity        decimal.Decimal `json:"quantity"`
		Currency        Currency        `json:"currency"`
		UnitPrice       decimal.Decimal `json:"unit_price"`
		Subtotal        decimal.Decimal `json:"subtotal"`
		SurchargePct    decimal.Decimal `json:"surcharge_pct"`
		SurchargeAmount decimal.Decimal `json:"surcharge_amount"`
		VATPct          decimal.Decimal `json:"vat_pct"`
		VATAmount       decimal.Decimal `json:"vat_amount"`
		Total           decimal.Decimal `json:"total"`
		ExchangeRate    decimal.Decimal `json:"exchange_rate"`
		TotalMXN        decimal.Decimal `json:"total_mxn"`
		Notes           string          `json:"notes,omitempty"`
	}

	Remesa struct {
		ID              string          `json:"id"`
		ProjectID       string          `json:"project_id"`
		Number          int             `json:"remesa_number"`
		Suffix          string          `json:"remesa_suffix"`
		Date            time.Time       `json:"date"`
		WeekDescription string          `json:"week_description,omitempty"`
		Total           decimal.Decimal `json:"total_amount"`
		Status          Status          `json:"status"`
		CreatedBy       string          `json:"created_by,omitempty"`
		CreatedAt       time.Time       `json:"created_at"`
		LedgerSyncedAt  *time.Time      `json:"ledger_synced_at,omitempty"`
	}

	// Approval is the payment stamp on a RemesaItem.
	Approval struct {
		Approved   bool       `json:"is_approved"`
		ApprovedAt *time.Time `json:"approved_at,omitempty"`
		ApprovedBy string     `json:"approved_by,omitempty"`
	}

	RemesaItem struct {
		ID             string          `json:"id"`
		RemesaID       string          `json:"remesa_id"`
		Section        Section         `json:"section"`
		LineNumber     int             `json:"line_number"`
		CategoryID     string          `json:"category_id,omitempty"`
		ConceptID      string          `json:"concept_id,omitempty"`
		CategoryName   string          `json:"category_name,omitempty"`
		ConceptName    string          `json:"concept_name,omitempty"`
		ContractorID   string          `json:"contractor_id,omitempty"`
		ContractorName string          `json:"contractor_name,omitempty"`
		Description    string          `json:"description,omitempty"`
		Amount         decimal.Decimal `json:"amount"`
		VATPct         decimal.Decimal `json:"vat_pct"`
		VATAmount      decimal.Decimal `json:"vat_amount"`
		Total          decimal.Decimal `json:"total"`
		PaymentType    string          `json:"payment_type,omitempty"`
		Bank           string          `json:"bank,omitempty"`
		AccountNumber  string          `json:"account_number,omitempty"`
		CLABE          string          `json:"clabe,omitempty"`
		Notes          string          `json:"notes,omitempty"`
		Approval
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyProject     = errors.New("empty project id")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidSection   = errors.New("invalid section")
	ErrInvalidNumber    = errors.New("invalid remesa number")
	ErrInvalidRate      = errors.New("invalid exchange rate")
	ErrRemesaNotDraft   = errors.New("remesa already sent")
	ErrNoItems          = errors.New("remesa has no items")
	ErrDuplicateRemesa  = errors.New("remesa number already in use")
	ErrMissingRemesaRef = errors.New("item without remesa id")
)

// ValidationError marks a caller mistake as opposed to a storage failure.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// ParseCurrency upper-cases and checks s against the supported set.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case MXN, USD, EUR:
		return c, nil
	case "":
		return MXN, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
}

// ParseSection accepts 1/2, A/B and free text such as "Transferencia" or
// "Cheque / efectivo".
func ParseSection(s string) (Section, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "1", "A":
		return SectionTransfer, nil
	case "2", "B":
		return SectionCheck, nil
	}
	switch {
	case strings.Contains(v, "TRANSF"):
		return SectionTransfer, nil
	case strings.Contains(v, "CHEQUE"), strings.Contains(v, "EFECTIVO"):
		return SectionCheck, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSection, s)
}

// PaymentType returns the payment method label stored alongside the section.
func (s Section) PaymentType() string {
	if s == SectionCheck {
		return PaymentCheck
	}
	return PaymentTransfer
}

// Title is the band text printed above the section in exported sheets.
func (s Section) Title() string {
	if s == SectionCheck {
		return "CHEQUE NOMINAL O EFECTIVO"
	}
	return "TRANSFERENCIAS BANCARIAS A NOMBRE DE:"
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartiallyPaid, StatusPaid:
		return true
	}
	return false
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return invalid("project_id", ErrEmptyProject)
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

func (c Concept) Validate() error {
	if strings.TrimSpace(c.CategoryID) == "" {
		return invalid("category_id", errors.New("empty category id"))
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

func (c Contractor) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return invalid("project_id", ErrEmptyProject)
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if c.CLABE != "" && len(strings.TrimSpace(c.CLABE)) != 18 {
		return invalid("clabe", errors.New("CLABE must have 18 digits"))
	}
	return nil
}

func (r ExchangeRate) Validate() error {
	if r.Date.IsZero() {
		return invalid("date", errors.New("date cannot be zero"))
	}
	if r.Currency != USD && r.Currency != EUR {
		return invalid("currency", fmt.Errorf("%w: %q", ErrInvalidCurrency, r.Currency))
	}
	if !r.Rate.IsPositive() {
		return invalid("rate", ErrInvalidRate)
	}
	return nil
}

func (b BudgetItem) Validate() error {
	if strings.TrimSpace(b.ProjectID) == "" {
		return invalid("project_id", ErrEmptyProject)
	}
	if _, err := ParseCurrency(string(b.Currency)); err != nil {
		return invalid("currency", err)
	}
	if b.ExchangeRate.IsNegative() {
		return invalid("exchange_rate", ErrInvalidRate)
	}
	return nil
}

func (r Remesa) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return invalid("project_id", ErrEmptyProject)
	}
	if r.Number < 0 {
		return invalid("remesa_number", ErrInvalidNumber)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return invalid("status", fmt.Errorf("unknown status %q", r.Status))
	}
	return nil
}

func (i RemesaItem) Validate() error {
	if i.Section != SectionTransfer && i.Section != SectionCheck {
		return invalid("section", fmt.Errorf("%w: %q", ErrInvalidSection, i.Section))
	}
	if strings.TrimSpace(i.ContractorName) == "" && strings.TrimSpace(i.ContractorID) == "" && i.Total.IsZero() {
		return invalid("contractor_name", errors.New("item needs a contractor or an amount"))
	}
	return nil
}

// Label returns the printed reference of the remesa, e.g. "05 MN".
func (r Remesa) Label() string {
	suffix := r.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return fmt.Sprintf("%02d %s", r.Number, suffix)
}

// DateOnly drops the clock part and pins t to UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
