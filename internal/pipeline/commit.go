package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"loteiro/internal"
)

// Store is the persistence collaborator the pipeline consumes. Implemented
// by internal/store; tests substitute fakes.
type Store interface {
	ListRefs(ctx context.Context, kind internal.RefKind, empreendimentoID int64) ([]internal.RefEntity, error)
	CreateRef(ctx context.Context, kind internal.RefKind, empreendimentoID int64, nome string) (internal.RefEntity, error)
	ListUnidades(ctx context.Context, empreendimentoID int64) ([]internal.UnidadeRecord, error)
	BulkCreateUnidades(ctx context.Context, empreendimentoID int64, rows []internal.UnidadeFields) error
	BulkUpdateUnidades(ctx context.Context, empreendimentoID int64, updates []internal.UnidadeUpdate, motivo string) error
	RecomputeAggregates(ctx context.Context, empreendimentoID int64) error
	InsertImportRun(ctx context.Context, empreendimentoID int64, counts internal.CommitResult) error
}

type commitInput struct {
	EmpreendimentoID int64
	Rows             []internal.RawRow
	Mapping          internal.ColumnMapping
	BlocoRes         map[string]*internal.ValueResolution
	TipologiaRes     map[string]*internal.ValueResolution
	Existing         []internal.UnidadeRecord
	Policy           internal.DuplicatePolicy
	Motivo           string
}

// runCommit executes the commit steps in order: materialize pending "create
// new" references, reprocess rows with the final ids, partition, bulk write,
// recompute aggregates. A bulk or recompute failure aborts the whole commit
// and leaves the batch re-triable; reference-creation failures only degrade
// the affected values to unmapped.
func runCommit(ctx context.Context, store Store, log *logrus.Logger, in commitInput) ([]internal.ImportRow, internal.CommitResult, error) {
	materializeRefs(ctx, store, log, internal.RefBloco, in.EmpreendimentoID, in.BlocoRes)
	materializeRefs(ctx, store, log, internal.RefTipologia, in.EmpreendimentoID, in.TipologiaRes)

	rows := ProcessRows(in.Rows, in.Mapping, in.BlocoRes, in.TipologiaRes, in.Existing)

	creates := []internal.UnidadeFields{}
	updates := []internal.UnidadeUpdate{}
	for _, row := range rows {
		switch {
		case !row.Valid:
		case row.Duplicate && in.Policy == internal.PolicyUpdate:
			updates = append(updates, internal.UnidadeUpdate{
				ID:            *row.ExistingID,
				Valor:         row.Fields.Valor,
				AreaPrivativa: row.Fields.AreaPrivativa,
			})
		case row.Duplicate:
		default:
			creates = append(creates, row.Fields)
		}
	}

	if len(creates) > 0 {
		if err := store.BulkCreateUnidades(ctx, in.EmpreendimentoID, creates); err != nil {
			return rows, internal.CommitResult{}, fmt.Errorf("falha ao criar unidades: %w", err)
		}
	}
	if len(updates) > 0 {
		if err := store.BulkUpdateUnidades(ctx, in.EmpreendimentoID, updates, in.Motivo); err != nil {
			return rows, internal.CommitResult{}, fmt.Errorf("falha ao atualizar unidades: %w", err)
		}
	}
	if err := store.RecomputeAggregates(ctx, in.EmpreendimentoID); err != nil {
		return rows, internal.CommitResult{}, fmt.Errorf("falha ao recalcular agregados: %w", err)
	}

	result := Summarize(rows, in.Policy)
	if err := store.InsertImportRun(ctx, in.EmpreendimentoID, result); err != nil {
		log.WithError(err).Warn("falha ao registrar execução da importação")
	}

	log.WithFields(logrus.Fields{
		"empreendimento": in.EmpreendimentoID,
		"criadas":        result.Created,
		"atualizadas":    result.Updated,
		"ignoradas":      result.Skipped,
		"com_erro":       result.Errors,
	}).Info("importação concluída")

	return rows, result, nil
}

// materializeRefs creates the pending references one at a time; creation is
// deliberately serialized so the same text never races into two entities.
func materializeRefs(ctx context.Context, store Store, log *logrus.Logger, kind internal.RefKind, empreendimentoID int64, resolutions map[string]*internal.ValueResolution) {
	for _, res := range SortedResolutions(resolutions) {
		if !res.CreateNew || res.MatchedID != nil {
			continue
		}
		entity, err := store.CreateRef(ctx, kind, empreendimentoID, res.SuggestedName)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{"tipo": kind, "nome": res.SuggestedName}).
				Warn("falha ao criar referência; valor seguirá não mapeado")
			res.CreateNew = false
			continue
		}
		id := entity.ID
		res.MatchedID = &id
	}
}
