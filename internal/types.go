package internal

// FieldID identifies one of the fixed system fields a spreadsheet column can
// be mapped to. Only FieldNumero is required for an import to proceed.
type FieldID string

const (
	FieldNumero        FieldID = "numero"
	FieldBloco         FieldID = "bloco"
	FieldTipologia     FieldID = "tipologia"
	FieldAndar         FieldID = "andar"
	FieldAreaPrivativa FieldID = "area_privativa"
	FieldValor         FieldID = "valor"
	FieldStatus        FieldID = "status"
	FieldDescricao     FieldID = "descricao"
	FieldObservacoes   FieldID = "observacoes"
)

// Fields lists every system field in mapping-detection order.
var Fields = []FieldID{
	FieldNumero, FieldBloco, FieldTipologia, FieldAndar,
	FieldAreaPrivativa, FieldValor, FieldStatus, FieldDescricao, FieldObservacoes,
}

// RawRow is one spreadsheet data row. LineNo is 1-based counting from the
// first row after the header. Cells is immutable once loaded.
type RawRow struct {
	LineNo int
	Cells  map[string]string
}

// ColumnMapping assigns system fields to column names; "" means unset.
type ColumnMapping map[FieldID]string

func (m ColumnMapping) Cell(row RawRow, field FieldID) string {
	col := m[field]
	if col == "" {
		return ""
	}
	return row.Cells[col]
}

// Clone returns an independent copy so a frozen mapping cannot be mutated
// through an older reference.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type RefKind string

const (
	RefBloco     RefKind = "bloco"
	RefTipologia RefKind = "tipologia"
)

// Label is the user-facing field name used in warnings.
func (k RefKind) Label() string {
	if k == RefTipologia {
		return "Tipologia"
	}
	return "Bloco"
}

// RefEntity is a named hierarchy node (bloco/quadra or tipologia) that
// unidades point to by id. Externally owned.
type RefEntity struct {
	ID   int64
	Nome string
}

// ValueResolution records, for one distinct raw text value of a fuzzy-mapped
// column, how it should resolve: to an existing entity, to a new one, or to
// nothing. Mutable by the user until the values gate is passed.
type ValueResolution struct {
	SourceText    string
	MatchedID     *int64
	CreateNew     bool
	Ignore        bool
	Similarity    float64
	SuggestedName string
}

type UnidadeStatus string

const (
	StatusDisponivel UnidadeStatus = "disponivel"
	StatusReservada  UnidadeStatus = "reservada"
	StatusVendida    UnidadeStatus = "vendida"
	StatusBloqueada  UnidadeStatus = "bloqueada"
)

// UnidadeStatuses is the closed enumeration accepted by the row processor.
var UnidadeStatuses = []UnidadeStatus{StatusDisponivel, StatusReservada, StatusVendida, StatusBloqueada}

// UnidadeFields holds the normalized payload of one importable unit/lot.
type UnidadeFields struct {
	Numero        string
	BlocoID       *int64
	TipologiaID   *int64
	Andar         *int
	AreaPrivativa *float64
	Valor         *float64
	Status        UnidadeStatus
	Descricao     string
	Observacoes   string
}

// ImportRow is the per-row outcome of the row processor. It lives only for
// the duration of one pipeline run and is never persisted.
type ImportRow struct {
	LineNo     int
	Fields     UnidadeFields
	Valid      bool
	Errors     []string
	Warnings   []string
	Duplicate  bool
	ExistingID *int64
}

// UnidadeRecord is a persisted leaf entity as seen by duplicate detection.
type UnidadeRecord struct {
	ID            int64
	Numero        string
	BlocoID       *int64
	TipologiaID   *int64
	Andar         *int
	AreaPrivativa *float64
	Valor         *float64
	Status        UnidadeStatus
	Descricao     string
	Observacoes   string
}

// UnidadeUpdate is the restricted field set a duplicate row may apply to its
// matched existing unidade under the update policy.
type UnidadeUpdate struct {
	ID            int64
	Valor         *float64
	AreaPrivativa *float64
}

type DuplicatePolicy string

const (
	PolicyIgnore DuplicatePolicy = "ignore"
	PolicyUpdate DuplicatePolicy = "update"
)

// RowFate explains what happened to a row after commit.
type RowFate string

const (
	FateCreated          RowFate = "created"
	FateUpdated          RowFate = "updated"
	FateSkippedDuplicate RowFate = "skipped-duplicate"
	FateSkippedError     RowFate = "skipped-error"
)

// CommitResult is produced once per run by the commit orchestrator.
// Created + Updated + Skipped + Errors equals the total row count.
type CommitResult struct {
	Created int
	Updated int
	Skipped int
	Errors  int
}
