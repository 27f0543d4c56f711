package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loteiro/internal"
	"loteiro/internal/config"
	"loteiro/internal/pipeline"
	"loteiro/internal/store"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx := context.Background()
	cmd := os.Args[1]
	switch cmd {
	case "template":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "modelo-importacao.xlsx", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		must(pipeline.WriteTemplateXLSX(*out))
		fmt.Printf("modelo gravado em %s\n", *out)
	case "import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "tabular file (.xlsx .csv .html .pdf .eml)")
		emp := fs.Int64("empreendimento", 0, "empreendimento id")
		policyFlag := fs.String("policy", "ignore", "duplicate policy: ignore|update")
		createRefs := fs.Bool("create-refs", false, "create missing blocos/tipologias")
		report := fs.String("report", "", "optional diagnostics xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" || *emp == 0 {
			must(fmt.Errorf("--file e --empreendimento são obrigatórios"))
		}
		must(runImport(ctx, db, cfg, *file, *emp, internal.DuplicatePolicy(*policyFlag), *createRefs, *report))
	case "refs:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emp := fs.Int64("empreendimento", 0, "empreendimento id")
		tipo := fs.String("tipo", "bloco", "bloco|tipologia")
		nome := fs.String("nome", "", "entity name")
		_ = fs.Parse(os.Args[2:])
		if *emp == 0 || strings.TrimSpace(*nome) == "" {
			must(fmt.Errorf("--empreendimento e --nome são obrigatórios"))
		}
		ref, err := db.CreateRef(ctx, internal.RefKind(*tipo), *emp, strings.TrimSpace(*nome))
		must(err)
		fmt.Printf("%s criado id=%d nome=%s\n", *tipo, ref.ID, ref.Nome)
	case "refs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emp := fs.Int64("empreendimento", 0, "empreendimento id")
		_ = fs.Parse(os.Args[2:])
		if *emp == 0 {
			must(fmt.Errorf("--empreendimento é obrigatório"))
		}
		blocos, err := db.ListBlocoResumos(ctx, *emp)
		must(err)
		for _, b := range blocos {
			fmt.Printf("bloco id=%d nome=%q unidades=%d\n", b.ID, b.Nome, b.Unidades)
		}
		tipologias, err := db.ListRefs(ctx, internal.RefTipologia, *emp)
		must(err)
		for _, t := range tipologias {
			fmt.Printf("tipologia id=%d nome=%q\n", t.ID, t.Nome)
		}
	default:
		usage()
		os.Exit(1)
	}
}

// runImport drives one pipeline run end to end, accepting the automatic
// proposals at each gate.
func runImport(ctx context.Context, db *store.DB, cfg config.Config, file string, emp int64, policy internal.DuplicatePolicy, createRefs bool, report string) error {
	blob, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	p := pipeline.New(db, cfg, emp)
	p.OnTransition = func(e pipeline.StageEvent) {
		fmt.Printf("etapa: %s -> %s\n", e.From, e.To)
	}

	if err := p.Load(filepath.Base(file), blob); err != nil {
		return err
	}
	if p.Stage() == pipeline.StageResult {
		printDiagnostics(p.Diagnostics(policy))
		return fmt.Errorf("arquivo não pôde ser importado")
	}

	for field, col := range p.Mapping() {
		if col != "" {
			fmt.Printf("mapeado: %s <- %q\n", field, col)
		}
	}
	if err := p.ConfirmMapping(ctx); err != nil {
		return err
	}

	for _, kind := range []internal.RefKind{internal.RefBloco, internal.RefTipologia} {
		for _, res := range p.Resolutions(kind) {
			if res.MatchedID != nil || res.Ignore {
				continue
			}
			if createRefs {
				if err := p.MarkCreateNew(kind, res.SourceText, ""); err != nil {
					return err
				}
				fmt.Printf("%s %q será criado\n", kind, res.SourceText)
			} else {
				fmt.Printf("%s %q sem correspondência (similaridade %.2f)\n", kind, res.SourceText, res.Similarity)
			}
		}
	}

	if err := p.ConfirmValues(ctx); err != nil {
		return err
	}

	preview := p.PreviewSummary(policy)
	fmt.Printf("prévia: criar=%d atualizar=%d ignorar=%d com_erro=%d\n",
		preview.Created, preview.Updated, preview.Skipped, preview.Errors)

	result, err := p.Commit(ctx, policy)
	if err != nil {
		return err
	}
	fmt.Printf("resultado: criadas=%d atualizadas=%d ignoradas=%d com_erro=%d\n",
		result.Created, result.Updated, result.Skipped, result.Errors)
	printDiagnostics(p.Diagnostics(policy))

	if report != "" {
		if err := pipeline.ExportDiagnosticsXLSX(p.Diagnostics(policy), report); err != nil {
			return err
		}
		fmt.Printf("relatório gravado em %s\n", report)
	}
	return nil
}

func printDiagnostics(diagnostics []pipeline.RowDiagnostic) {
	for _, diag := range diagnostics {
		if len(diag.Errors) == 0 && len(diag.Warnings) == 0 {
			continue
		}
		fmt.Printf("linha %d (%s): %s", diag.LineNo, diag.Fate, strings.Join(diag.Errors, "; "))
		if len(diag.Warnings) > 0 {
			fmt.Printf(" [avisos: %s]", strings.Join(diag.Warnings, "; "))
		}
		fmt.Println()
	}
}

func usage() {
	fmt.Println("usage: loteiro <command>")
	fmt.Println("commands:")
	fmt.Println("  template --out=modelo-importacao.xlsx")
	fmt.Println("  import --file=planilha.xlsx --empreendimento=1 [--policy=ignore|update] [--create-refs] [--report=out.xlsx]")
	fmt.Println("  refs:add --empreendimento=1 --tipo=bloco|tipologia --nome=...")
	fmt.Println("  refs:list --empreendimento=1")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
