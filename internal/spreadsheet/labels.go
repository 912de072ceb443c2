package spreadsheet

import (
	"strings"

	"remesas/internal/core"
)

// Field names a column of the historical ledger.
type Field string

const (
	FieldNumber      Field = "remesa_number"
	FieldDate        Field = "date"
	FieldCategory    Field = "category"
	FieldConcept     Field = "concept"
	FieldContractor  Field = "contractor"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldVATPct      Field = "vat_pct"
	FieldVATAmount   Field = "vat_amount"
	FieldTotal       Field = "total"
	FieldPaymentType Field = "payment_type"
	FieldBank        Field = "bank"
	FieldAccount     Field = "account"
	FieldCLABE       Field = "clabe"
	FieldNotes       Field = "notes"
)

// headerScanRows bounds the search for the "# REMESA" header row.
const headerScanRows = 20

var numberHeaderLabels = []string{"# REMESA", "#REMESA"}

type fieldLabels struct {
	field    Field
	variants []string
}

// ledgerLabels lists the accepted header text per field. Order matters for
// the substring pass: more specific labels ("% IVA") come before labels they
// contain ("IVA").
var ledgerLabels = []fieldLabels{
	{FieldDate, []string{"FECHA", "FECHA DE PAGO", "FECHA REMESA", "DATE"}},
	{FieldCategory, []string{"CATEGORIA", "CATEGORY", "RUBRO", "PARTIDA PRESUPUESTAL"}},
	{FieldConcept, []string{"SUBCATEGORIA", "SUB-CATEGORIA", "SUB CATEGORIA", "CONCEPTO", "CONCEPT"}},
	{FieldContractor, []string{"CONTRATISTA", "NOMBRE CONTRATISTA", "PROVEEDOR", "BENEFICIARIO"}},
	{FieldDescription, []string{"PARTIDA", "DESCRIPCION", "CONCEPTO DE PAGO", "DETALLE"}},
	{FieldVATPct, []string{"% IVA", "IVA %", "%IVA", "PORCENTAJE IVA", "TASA IVA"}},
	{FieldVATAmount, []string{"IVA", "IMPORTE IVA", "MONTO IVA"}},
	{FieldAmount, []string{"IMPORTE", "MONTO", "SUBTOTAL"}},
	{FieldTotal, []string{"TOTAL", "TOTAL A PAGAR"}},
	{FieldPaymentType, []string{"TIPO DE PAGO", "FORMA DE PAGO", "TIPO PAGO", "METODO DE PAGO"}},
	{FieldBank, []string{"BANCO"}},
	{FieldAccount, []string{"CUENTA", "NO. DE CUENTA", "NUMERO DE CUENTA", "NO. CUENTA"}},
	{FieldCLABE, []string{"CLABE", "CLABE INTERBANCARIA"}},
	{FieldNotes, []string{"NOTAS", "OBSERVACIONES", "COMENTARIOS", "NOTA"}},
}

// findHeaderRow returns the first row within headerScanRows that has a
// "# REMESA" cell, and that cell's column.
func findHeaderRow(g Grid) (row, col int, ok bool) {
	for r := 0; r < len(g) && r < headerScanRows; r++ {
		for c := range g[r] {
			cell := core.Fold(g.Cell(r, c))
			for _, label := range numberHeaderLabels {
				if strings.Contains(cell, label) {
					return r, c, true
				}
			}
		}
	}
	return 0, 0, false
}

// resolveColumns binds each field to a header column: first by exact label,
// then by substring. A column is bound at most once and fields that match no
// column are left out of the result.
func resolveColumns(header []string, numberCol int) map[Field]int {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = core.Fold(h)
	}
	used := map[int]bool{numberCol: true}
	cols := map[Field]int{FieldNumber: numberCol}

	bind := func(f fieldLabels, match func(cell, label string) bool) {
		if _, done := cols[f.field]; done {
			return
		}
		for _, v := range f.variants {
			label := core.Fold(v)
			for c, cell := range folded {
				if used[c] || cell == "" {
					continue
				}
				if match(cell, label) {
					cols[f.field] = c
					used[c] = true
					return
				}
			}
		}
	}

	for _, f := range ledgerLabels {
		bind(f, func(cell, label string) bool { return cell == label })
	}
	for _, f := range ledgerLabels {
		bind(f, strings.Contains)
	}
	return cols
}
