package pipeline

import (
	"context"
	"errors"
	"testing"

	"loteiro/internal"
	"loteiro/internal/util"
)

type fakeStore struct {
	refs     map[internal.RefKind][]internal.RefEntity
	unidades []internal.UnidadeRecord

	nextRefID     int64
	calls         int
	createdRefs   []string
	bulkCreates   [][]internal.UnidadeFields
	bulkUpdates   [][]internal.UnidadeUpdate
	updateMotivos []string
	recomputes    int
	runs          []internal.CommitResult

	failCreateRefFor string
	bulkCreateErr    error
	bulkUpdateErr    error
	recomputeErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{refs: map[internal.RefKind][]internal.RefEntity{}, nextRefID: 100}
}

func (f *fakeStore) ListRefs(_ context.Context, kind internal.RefKind, _ int64) ([]internal.RefEntity, error) {
	f.calls++
	return f.refs[kind], nil
}

func (f *fakeStore) CreateRef(_ context.Context, kind internal.RefKind, _ int64, nome string) (internal.RefEntity, error) {
	f.calls++
	if f.failCreateRefFor != "" && nome == f.failCreateRefFor {
		return internal.RefEntity{}, errors.New("create ref failed")
	}
	f.nextRefID++
	ref := internal.RefEntity{ID: f.nextRefID, Nome: nome}
	f.refs[kind] = append(f.refs[kind], ref)
	f.createdRefs = append(f.createdRefs, string(kind)+":"+nome)
	return ref, nil
}

func (f *fakeStore) ListUnidades(_ context.Context, _ int64) ([]internal.UnidadeRecord, error) {
	f.calls++
	return f.unidades, nil
}

func (f *fakeStore) BulkCreateUnidades(_ context.Context, _ int64, rows []internal.UnidadeFields) error {
	f.calls++
	if f.bulkCreateErr != nil {
		return f.bulkCreateErr
	}
	f.bulkCreates = append(f.bulkCreates, rows)
	return nil
}

func (f *fakeStore) BulkUpdateUnidades(_ context.Context, _ int64, updates []internal.UnidadeUpdate, motivo string) error {
	f.calls++
	if f.bulkUpdateErr != nil {
		return f.bulkUpdateErr
	}
	f.bulkUpdates = append(f.bulkUpdates, updates)
	f.updateMotivos = append(f.updateMotivos, motivo)
	return nil
}

func (f *fakeStore) RecomputeAggregates(_ context.Context, _ int64) error {
	f.calls++
	if f.recomputeErr != nil {
		return f.recomputeErr
	}
	f.recomputes++
	return nil
}

func (f *fakeStore) InsertImportRun(_ context.Context, _ int64, counts internal.CommitResult) error {
	f.calls++
	f.runs = append(f.runs, counts)
	return nil
}

func commitRows() []internal.RawRow {
	return []internal.RawRow{
		{LineNo: 1, Cells: map[string]string{"Número": "01", "Valor": "150.000,00"}},
		{LineNo: 2, Cells: map[string]string{"Número": "02", "Valor": "89000"}},
		{LineNo: 3, Cells: map[string]string{"Número": "10", "Valor": "200.000,00", "Área": "120,5"}},
	}
}

func TestRunCommitPartitionsAndCalls(t *testing.T) {
	fs := newFakeStore()
	existing := []internal.UnidadeRecord{{ID: 9, Numero: "10"}}

	rows, result, err := runCommit(context.Background(), fs, util.GetLogger(), commitInput{
		EmpreendimentoID: 1,
		Rows:             commitRows(),
		Mapping:          testMapping(),
		Existing:         existing,
		Policy:           internal.PolicyUpdate,
		Motivo:           "importacao-planilha",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(fs.bulkCreates) != 1 || len(fs.bulkCreates[0]) != 2 {
		t.Fatalf("bulk creates = %+v", fs.bulkCreates)
	}
	if len(fs.bulkUpdates) != 1 || len(fs.bulkUpdates[0]) != 1 {
		t.Fatalf("bulk updates = %+v", fs.bulkUpdates)
	}
	if fs.recomputes != 1 {
		t.Fatalf("recomputes = %d", fs.recomputes)
	}

	update := fs.bulkUpdates[0][0]
	if update.ID != 9 || update.Valor == nil || *update.Valor != 200000 || update.AreaPrivativa == nil || *update.AreaPrivativa != 120.5 {
		t.Fatalf("restricted update fields wrong: %+v", update)
	}
	if fs.updateMotivos[0] != "importacao-planilha" {
		t.Fatalf("motivo = %q", fs.updateMotivos[0])
	}

	if result.Created != 2 || result.Updated != 1 || result.Skipped != 0 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Created+result.Updated+result.Skipped+result.Errors != len(rows) {
		t.Fatalf("buckets must cover every row: %+v", result)
	}
	if len(fs.runs) != 1 {
		t.Fatalf("import run not recorded: %+v", fs.runs)
	}
}

func TestRunCommitIgnorePolicySkipsDuplicates(t *testing.T) {
	fs := newFakeStore()
	existing := []internal.UnidadeRecord{{ID: 9, Numero: "10"}}

	_, result, err := runCommit(context.Background(), fs, util.GetLogger(), commitInput{
		EmpreendimentoID: 1,
		Rows:             commitRows(),
		Mapping:          testMapping(),
		Existing:         existing,
		Policy:           internal.PolicyIgnore,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.bulkUpdates) != 0 {
		t.Fatalf("ignore policy must not update: %+v", fs.bulkUpdates)
	}
	if result.Created != 2 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunCommitMaterializesRefs(t *testing.T) {
	fs := newFakeStore()
	blocoRes := map[string]*internal.ValueResolution{
		"Quadra Z": {SourceText: "Quadra Z", CreateNew: true, SuggestedName: "Quadra Z"},
	}
	rows := []internal.RawRow{
		{LineNo: 1, Cells: map[string]string{"Número": "01", "Bloco": "Quadra Z"}},
	}

	out, _, err := runCommit(context.Background(), fs, util.GetLogger(), commitInput{
		EmpreendimentoID: 1,
		Rows:             rows,
		Mapping:          testMapping(),
		BlocoRes:         blocoRes,
		Policy:           internal.PolicyIgnore,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(fs.createdRefs) != 1 || fs.createdRefs[0] != "bloco:Quadra Z" {
		t.Fatalf("created refs = %v", fs.createdRefs)
	}
	if blocoRes["Quadra Z"].MatchedID == nil {
		t.Fatal("resolution must record the created id")
	}
	if out[0].Fields.BlocoID == nil || *out[0].Fields.BlocoID != *blocoRes["Quadra Z"].MatchedID {
		t.Fatalf("row not re-resolved after materialization: %+v", out[0])
	}
	if len(out[0].Warnings) != 0 {
		t.Fatalf("no warning expected once the ref exists: %v", out[0].Warnings)
	}
}

func TestRunCommitRefCreationFailureDegrades(t *testing.T) {
	fs := newFakeStore()
	fs.failCreateRefFor = "Quadra Z"
	blocoRes := map[string]*internal.ValueResolution{
		"Quadra Z": {SourceText: "Quadra Z", CreateNew: true, SuggestedName: "Quadra Z"},
	}
	rows := []internal.RawRow{
		{LineNo: 1, Cells: map[string]string{"Número": "01", "Bloco": "Quadra Z"}},
	}

	out, result, err := runCommit(context.Background(), fs, util.GetLogger(), commitInput{
		EmpreendimentoID: 1,
		Rows:             rows,
		Mapping:          testMapping(),
		BlocoRes:         blocoRes,
		Policy:           internal.PolicyIgnore,
	})
	if err != nil {
		t.Fatalf("reference failure must not abort the batch: %v", err)
	}
	if out[0].Fields.BlocoID != nil {
		t.Fatalf("degraded value must stay unmapped: %+v", out[0])
	}
	if len(out[0].Warnings) != 1 {
		t.Fatalf("degraded value must warn: %v", out[0].Warnings)
	}
	if result.Created != 1 {
		t.Fatalf("row must still be committed: %+v", result)
	}
}

func TestRunCommitBulkFailureAborts(t *testing.T) {
	fs := newFakeStore()
	fs.bulkCreateErr = errors.New("db unavailable")

	_, _, err := runCommit(context.Background(), fs, util.GetLogger(), commitInput{
		EmpreendimentoID: 1,
		Rows:             commitRows(),
		Mapping:          testMapping(),
		Policy:           internal.PolicyIgnore,
	})
	if err == nil {
		t.Fatal("bulk failure must abort the commit")
	}
	if fs.recomputes != 0 {
		t.Fatal("recompute must not run after an aborted commit")
	}
	if len(fs.runs) != 0 {
		t.Fatal("no import run may be recorded for an aborted commit")
	}
}
