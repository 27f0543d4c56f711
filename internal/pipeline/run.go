package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"loteiro/internal"
	"loteiro/internal/config"
	"loteiro/internal/util"
)

type Stage string

const (
	StageUpload     Stage = "upload"
	StageMapColumns Stage = "map_columns"
	StageMapValues  Stage = "map_values"
	StagePreview    Stage = "preview"
	StageResult     Stage = "result"
)

// StageEvent is emitted on every forward or backward transition.
type StageEvent struct {
	From Stage
	To   Stage
}

// Pipeline is one reconciliation run as an explicit five-state machine:
// Upload → MapColumns → MapValues → Preview → Result. Each advance method
// validates the current stage; Back and Reset discard downstream derived
// state. An instance is single-run and not safe for concurrent use.
type Pipeline struct {
	store            Store
	log              *logrus.Logger
	threshold        float64
	motivo           string
	empreendimentoID int64

	// OnTransition, when set, receives every stage transition.
	OnTransition func(StageEvent)

	stage        Stage
	columns      []string
	rows         []internal.RawRow
	mapping      internal.ColumnMapping
	blocos       []internal.RefEntity
	tipologias   []internal.RefEntity
	blocoRes     map[string]*internal.ValueResolution
	tipologiaRes map[string]*internal.ValueResolution
	existing     []internal.UnidadeRecord
	importRows   []internal.ImportRow
	result       *internal.CommitResult
}

func New(store Store, cfg config.Config, empreendimentoID int64) *Pipeline {
	return &Pipeline{
		store:            store,
		log:              util.GetLogger(),
		threshold:        cfg.MatchProposalThreshold,
		motivo:           cfg.UpdateReason,
		empreendimentoID: empreendimentoID,
		stage:            StageUpload,
	}
}

func (p *Pipeline) Stage() Stage { return p.stage }

func (p *Pipeline) transition(to Stage) {
	from := p.stage
	p.stage = to
	if p.OnTransition != nil {
		p.OnTransition(StageEvent{From: from, To: to})
	}
}

// Load parses the uploaded file. An unreadable or empty file is fatal to the
// run: a single synthetic error row is emitted and the pipeline jumps
// straight to Result without touching any collaborator.
func (p *Pipeline) Load(name string, blob []byte) error {
	if p.stage != StageUpload {
		return fmt.Errorf("estágio inválido para carregar arquivo: %s", p.stage)
	}

	table, err := LoadTable(name, blob)
	if err != nil {
		p.failLoad(err.Error())
		return nil
	}
	if len(table.Rows) == 0 {
		p.failLoad("arquivo vazio ou sem linhas de dados")
		return nil
	}

	p.columns = table.Columns
	p.rows = table.Rows
	p.mapping = AutoDetectMapping(table.Columns)
	p.log.WithFields(logrus.Fields{"arquivo": name, "linhas": len(table.Rows), "colunas": len(table.Columns)}).
		Info("arquivo carregado")
	p.transition(StageMapColumns)
	return nil
}

func (p *Pipeline) failLoad(message string) {
	p.importRows = []internal.ImportRow{{
		LineNo:   0,
		Valid:    false,
		Errors:   []string{message},
		Warnings: []string{},
	}}
	p.result = &internal.CommitResult{Errors: 1}
	p.log.Warn("falha ao carregar arquivo: " + message)
	p.transition(StageResult)
}

func (p *Pipeline) Columns() []string       { return p.columns }
func (p *Pipeline) Rows() []internal.RawRow { return p.rows }

func (p *Pipeline) Mapping() internal.ColumnMapping {
	return p.mapping.Clone()
}

// SetMapping overrides one proposed assignment; "" clears it.
func (p *Pipeline) SetMapping(field internal.FieldID, column string) error {
	if p.stage != StageMapColumns {
		return fmt.Errorf("mapeamento já congelado no estágio %s", p.stage)
	}
	if column != "" {
		found := false
		for _, col := range p.columns {
			if col == column {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("coluna %q não existe no arquivo", column)
		}
	}
	p.mapping[field] = column
	return nil
}

// ConfirmMapping freezes the column mapping, fetches the reference entities
// once and derives the value-resolution proposals.
func (p *Pipeline) ConfirmMapping(ctx context.Context) error {
	if p.stage != StageMapColumns {
		return fmt.Errorf("estágio inválido para confirmar mapeamento: %s", p.stage)
	}
	if err := ValidateMapping(p.mapping, p.columns); err != nil {
		return err
	}

	blocos, err := p.store.ListRefs(ctx, internal.RefBloco, p.empreendimentoID)
	if err != nil {
		return fmt.Errorf("falha ao listar blocos: %w", err)
	}
	tipologias, err := p.store.ListRefs(ctx, internal.RefTipologia, p.empreendimentoID)
	if err != nil {
		return fmt.Errorf("falha ao listar tipologias: %w", err)
	}
	p.blocos = blocos
	p.tipologias = tipologias

	p.blocoRes = ProposeResolutions(DistinctValues(p.rows, p.mapping, internal.FieldBloco), blocos, p.threshold)
	p.tipologiaRes = ProposeResolutions(DistinctValues(p.rows, p.mapping, internal.FieldTipologia), tipologias, p.threshold)

	p.transition(StageMapValues)
	return nil
}

func (p *Pipeline) resolutions(kind internal.RefKind) map[string]*internal.ValueResolution {
	if kind == internal.RefTipologia {
		return p.tipologiaRes
	}
	return p.blocoRes
}

func (p *Pipeline) refs(kind internal.RefKind) []internal.RefEntity {
	if kind == internal.RefTipologia {
		return p.tipologias
	}
	return p.blocos
}

// Resolutions lists the current proposals for one reference kind in
// source-text order.
func (p *Pipeline) Resolutions(kind internal.RefKind) []*internal.ValueResolution {
	return SortedResolutions(p.resolutions(kind))
}

func (p *Pipeline) resolutionFor(kind internal.RefKind, sourceText string) (*internal.ValueResolution, error) {
	if p.stage != StageMapValues {
		return nil, fmt.Errorf("resoluções não editáveis no estágio %s", p.stage)
	}
	res, ok := p.resolutions(kind)[strings.TrimSpace(sourceText)]
	if !ok {
		return nil, fmt.Errorf("valor %q não encontrado entre os valores de %s", sourceText, kind)
	}
	return res, nil
}

// ResolveTo points a value at an existing entity of the same kind. The
// entity must be one fetched at pipeline start, so ids are never dangling.
func (p *Pipeline) ResolveTo(kind internal.RefKind, sourceText string, entityID int64) error {
	res, err := p.resolutionFor(kind, sourceText)
	if err != nil {
		return err
	}
	for _, entity := range p.refs(kind) {
		if entity.ID == entityID {
			id := entity.ID
			res.MatchedID = &id
			res.CreateNew = false
			res.Ignore = false
			return nil
		}
	}
	return fmt.Errorf("%s com id %d não existe", kind, entityID)
}

// MarkCreateNew schedules a new reference entity for the value; the name
// defaults to the source text.
func (p *Pipeline) MarkCreateNew(kind internal.RefKind, sourceText, nome string) error {
	res, err := p.resolutionFor(kind, sourceText)
	if err != nil {
		return err
	}
	if strings.TrimSpace(nome) == "" {
		nome = res.SourceText
	}
	res.MatchedID = nil
	res.CreateNew = true
	res.Ignore = false
	res.SuggestedName = strings.TrimSpace(nome)
	return nil
}

// MarkIgnore leaves the value unmapped on purpose.
func (p *Pipeline) MarkIgnore(kind internal.RefKind, sourceText string) error {
	res, err := p.resolutionFor(kind, sourceText)
	if err != nil {
		return err
	}
	res.MatchedID = nil
	res.CreateNew = false
	res.Ignore = true
	return nil
}

// ConfirmValues freezes the resolutions, fetches the persisted unidades for
// duplicate detection and runs the row processor.
func (p *Pipeline) ConfirmValues(ctx context.Context) error {
	if p.stage != StageMapValues {
		return fmt.Errorf("estágio inválido para confirmar valores: %s", p.stage)
	}

	existing, err := p.store.ListUnidades(ctx, p.empreendimentoID)
	if err != nil {
		return fmt.Errorf("falha ao listar unidades existentes: %w", err)
	}
	p.existing = existing
	p.importRows = ProcessRows(p.rows, p.mapping, p.blocoRes, p.tipologiaRes, existing)

	p.transition(StagePreview)
	return nil
}

// PreviewRows exposes the processed rows for user review.
func (p *Pipeline) PreviewRows() []internal.ImportRow { return p.importRows }

// PreviewSummary shows the four buckets the chosen policy would produce.
func (p *Pipeline) PreviewSummary(policy internal.DuplicatePolicy) internal.CommitResult {
	return Summarize(p.importRows, policy)
}

// Commit runs the orchestrator. On failure the pipeline stays in Preview and
// the same prepared batch may be retried.
func (p *Pipeline) Commit(ctx context.Context, policy internal.DuplicatePolicy) (internal.CommitResult, error) {
	if p.stage != StagePreview {
		return internal.CommitResult{}, fmt.Errorf("estágio inválido para commit: %s", p.stage)
	}
	if policy != internal.PolicyIgnore && policy != internal.PolicyUpdate {
		return internal.CommitResult{}, fmt.Errorf("política de duplicados inválida: %s", policy)
	}

	rows, result, err := runCommit(ctx, p.store, p.log, commitInput{
		EmpreendimentoID: p.empreendimentoID,
		Rows:             p.rows,
		Mapping:          p.mapping,
		BlocoRes:         p.blocoRes,
		TipologiaRes:     p.tipologiaRes,
		Existing:         p.existing,
		Policy:           policy,
		Motivo:           p.motivo,
	})
	if err != nil {
		return internal.CommitResult{}, err
	}

	p.importRows = rows
	p.result = &result
	p.transition(StageResult)
	return result, nil
}

// Result returns the terminal counts once the run reached the Result stage.
func (p *Pipeline) Result() (internal.CommitResult, bool) {
	if p.result == nil {
		return internal.CommitResult{}, false
	}
	return *p.result, true
}

// Diagnostics explains every row's fate under the given policy.
func (p *Pipeline) Diagnostics(policy internal.DuplicatePolicy) []RowDiagnostic {
	return BuildDiagnostics(p.importRows, policy)
}

// Back re-enters the previous stage fresh, discarding everything derived
// after it.
func (p *Pipeline) Back() {
	switch p.stage {
	case StagePreview:
		p.importRows = nil
		p.existing = nil
		p.transition(StageMapValues)
	case StageMapValues:
		p.blocoRes = nil
		p.tipologiaRes = nil
		p.blocos = nil
		p.tipologias = nil
		p.transition(StageMapColumns)
	case StageMapColumns:
		p.Reset()
	}
}

// Reset abandons the run entirely; the only way out mid-pipeline.
func (p *Pipeline) Reset() {
	p.columns = nil
	p.rows = nil
	p.mapping = nil
	p.blocos = nil
	p.tipologias = nil
	p.blocoRes = nil
	p.tipologiaRes = nil
	p.existing = nil
	p.importRows = nil
	p.result = nil
	p.transition(StageUpload)
}
