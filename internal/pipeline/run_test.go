package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"loteiro/internal"
	"loteiro/internal/config"
)

func testConfig() config.Config {
	return config.Config{MatchProposalThreshold: 0.6, UpdateReason: "importacao-planilha"}
}

const happyCSV = `Número;Bloco;Tipologia;Valor;Status
01;Quadra A;Padrão;150.000,00;disponivel
02;Quadra B;Padrão;89000;
02;Quadra B;;;
`

func TestPipelineHappyPath(t *testing.T) {
	fs := newFakeStore()
	fs.refs[internal.RefBloco] = []internal.RefEntity{{ID: 1, Nome: "Quadra A"}}
	fs.refs[internal.RefTipologia] = []internal.RefEntity{{ID: 3, Nome: "Padrão"}}

	p := New(fs, testConfig(), 1)
	events := []StageEvent{}
	p.OnTransition = func(ev StageEvent) { events = append(events, ev) }

	if err := p.Load("unidades.csv", []byte(happyCSV)); err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageMapColumns {
		t.Fatalf("stage = %s", p.Stage())
	}
	if got := p.Mapping()[internal.FieldNumero]; got != "Número" {
		t.Fatalf("numero auto-detected as %q", got)
	}

	ctx := context.Background()
	if err := p.ConfirmMapping(ctx); err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageMapValues {
		t.Fatalf("stage = %s", p.Stage())
	}

	// "Quadra B" shares the token "quadra" with "Quadra A" and gets a
	// fuzzy proposal; the operator overrides it to a new bloco.
	var quadraB *internal.ValueResolution
	for _, res := range p.Resolutions(internal.RefBloco) {
		if res.SourceText == "Quadra B" {
			quadraB = res
		}
	}
	if quadraB == nil || quadraB.MatchedID == nil || *quadraB.MatchedID != 1 {
		t.Fatalf("expected fuzzy proposal for Quadra B, got %+v", quadraB)
	}
	if err := p.MarkCreateNew(internal.RefBloco, "Quadra B", ""); err != nil {
		t.Fatal(err)
	}

	if err := p.ConfirmValues(ctx); err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StagePreview {
		t.Fatalf("stage = %s", p.Stage())
	}
	summary := p.PreviewSummary(internal.PolicyIgnore)
	if summary.Created != 2 || summary.Errors != 1 {
		t.Fatalf("preview summary = %+v", summary)
	}

	result, err := p.Commit(ctx, internal.PolicyIgnore)
	if err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageResult {
		t.Fatalf("stage = %s", p.Stage())
	}
	if result.Created != 2 || result.Updated != 0 || result.Skipped != 0 || result.Errors != 1 {
		t.Fatalf("result = %+v", result)
	}

	if len(fs.createdRefs) != 1 || fs.createdRefs[0] != "bloco:Quadra B" {
		t.Fatalf("created refs = %v", fs.createdRefs)
	}
	if len(fs.bulkCreates) != 1 || len(fs.bulkCreates[0]) != 2 {
		t.Fatalf("bulk creates = %+v", fs.bulkCreates)
	}
	second := fs.bulkCreates[0][1]
	if second.BlocoID == nil || *second.BlocoID != *quadraB.MatchedID {
		t.Fatalf("second row must point at the created bloco: %+v", second)
	}

	want := []StageEvent{
		{StageUpload, StageMapColumns},
		{StageMapColumns, StageMapValues},
		{StageMapValues, StagePreview},
		{StagePreview, StageResult},
	}
	if len(events) != len(want) {
		t.Fatalf("transitions = %v", events)
	}
	for i, ev := range want {
		if events[i] != ev {
			t.Fatalf("transition %d = %v, want %v", i, events[i], ev)
		}
	}
}

func TestPipelineEmptyUploadGoesStraightToResult(t *testing.T) {
	fs := newFakeStore()
	p := New(fs, testConfig(), 1)

	if err := p.Load("vazio.csv", []byte("Número;Bloco\n")); err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageResult {
		t.Fatalf("stage = %s", p.Stage())
	}
	result, ok := p.Result()
	if !ok || result.Errors != 1 || result.Created != 0 {
		t.Fatalf("result = %+v ok=%v", result, ok)
	}
	rows := p.PreviewRows()
	if len(rows) != 1 || rows[0].Valid || len(rows[0].Errors) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if fs.calls != 0 {
		t.Fatalf("empty upload must not touch the store, got %d calls", fs.calls)
	}
}

func TestPipelineUnreadableUploadGoesStraightToResult(t *testing.T) {
	p := New(newFakeStore(), testConfig(), 1)
	if err := p.Load("foto.png", []byte{0x89, 0x50}); err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageResult {
		t.Fatalf("stage = %s", p.Stage())
	}
	rows := p.PreviewRows()
	if len(rows) != 1 || !strings.Contains(rows[0].Errors[0], "não suportado") {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestPipelineStageGating(t *testing.T) {
	p := New(newFakeStore(), testConfig(), 1)
	ctx := context.Background()

	if err := p.ConfirmMapping(ctx); err == nil {
		t.Fatal("ConfirmMapping must fail before a file is loaded")
	}
	if err := p.ConfirmValues(ctx); err == nil {
		t.Fatal("ConfirmValues must fail before mapping is confirmed")
	}
	if _, err := p.Commit(ctx, internal.PolicyIgnore); err == nil {
		t.Fatal("Commit must fail outside Preview")
	}

	if err := p.Load("unidades.csv", []byte(happyCSV)); err != nil {
		t.Fatal(err)
	}
	if err := p.Load("unidades.csv", []byte(happyCSV)); err == nil {
		t.Fatal("a second upload must be rejected mid-run")
	}
}

func TestPipelineInvalidPolicyRejected(t *testing.T) {
	fs := newFakeStore()
	p := New(fs, testConfig(), 1)
	ctx := context.Background()
	if err := p.Load("unidades.csv", []byte(happyCSV)); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmMapping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmValues(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Commit(ctx, internal.DuplicatePolicy("merge")); err == nil {
		t.Fatal("unknown policy must be rejected")
	}
	if p.Stage() != StagePreview {
		t.Fatalf("stage = %s", p.Stage())
	}
}

func TestPipelineBackDiscardsDerivedState(t *testing.T) {
	fs := newFakeStore()
	p := New(fs, testConfig(), 1)
	ctx := context.Background()

	if err := p.Load("unidades.csv", []byte(happyCSV)); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmMapping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmValues(ctx); err != nil {
		t.Fatal(err)
	}

	p.Back()
	if p.Stage() != StageMapValues {
		t.Fatalf("stage = %s", p.Stage())
	}
	if len(p.PreviewRows()) != 0 {
		t.Fatal("preview rows must be discarded")
	}

	p.Back()
	if p.Stage() != StageMapColumns {
		t.Fatalf("stage = %s", p.Stage())
	}
	if len(p.Resolutions(internal.RefBloco)) != 0 {
		t.Fatal("resolutions must be discarded")
	}
	if len(p.Columns()) == 0 {
		t.Fatal("uploaded file must survive going back to column mapping")
	}

	p.Back()
	if p.Stage() != StageUpload {
		t.Fatalf("stage = %s", p.Stage())
	}
	if p.Columns() != nil {
		t.Fatal("reset must drop the uploaded file")
	}
}

func TestPipelineCommitFailureIsRetriable(t *testing.T) {
	fs := newFakeStore()
	fs.bulkCreateErr = errors.New("db unavailable")
	p := New(fs, testConfig(), 1)
	ctx := context.Background()

	if err := p.Load("unidades.csv", []byte(happyCSV)); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmMapping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.ConfirmValues(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Commit(ctx, internal.PolicyIgnore); err == nil {
		t.Fatal("commit must surface the bulk failure")
	}
	if p.Stage() != StagePreview {
		t.Fatalf("failed commit must stay in preview, stage = %s", p.Stage())
	}

	fs.bulkCreateErr = nil
	if _, err := p.Commit(ctx, internal.PolicyIgnore); err != nil {
		t.Fatalf("retry must succeed: %v", err)
	}
	if p.Stage() != StageResult {
		t.Fatalf("stage = %s", p.Stage())
	}
}
