package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"loteiro/internal"
)

// DB is the SQLite-backed reference/leaf store the pipeline commits into.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS blocos (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  empreendimentoId INTEGER NOT NULL,
  nome TEXT NOT NULL,
  unidadesCount INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_blocos_emp ON blocos(empreendimentoId);

CREATE TABLE IF NOT EXISTS tipologias (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  empreendimentoId INTEGER NOT NULL,
  nome TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tipologias_emp ON tipologias(empreendimentoId);

CREATE TABLE IF NOT EXISTS unidades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  empreendimentoId INTEGER NOT NULL,
  numero TEXT NOT NULL,
  blocoId INTEGER,
  tipologiaId INTEGER,
  andar INTEGER,
  areaPrivativa REAL,
  valor REAL,
  status TEXT NOT NULL,
  descricao TEXT,
  observacoes TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(blocoId) REFERENCES blocos(id),
  FOREIGN KEY(tipologiaId) REFERENCES tipologias(id)
);
CREATE INDEX IF NOT EXISTS idx_unidades_emp ON unidades(empreendimentoId);
CREATE INDEX IF NOT EXISTS idx_unidades_numero ON unidades(empreendimentoId, numero);

CREATE TABLE IF NOT EXISTS unidade_alteracoes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  unidadeId INTEGER NOT NULL,
  motivo TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(unidadeId) REFERENCES unidades(id)
);

CREATE TABLE IF NOT EXISTS import_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  empreendimentoId INTEGER NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func refTable(kind internal.RefKind) (string, error) {
	switch kind {
	case internal.RefBloco:
		return "blocos", nil
	case internal.RefTipologia:
		return "tipologias", nil
	default:
		return "", fmt.Errorf("tipo de referência desconhecido: %s", kind)
	}
}

func (d *DB) ListRefs(ctx context.Context, kind internal.RefKind, empreendimentoID int64) ([]internal.RefEntity, error) {
	table, err := refTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, nome FROM `+table+` WHERE empreendimentoId = ? ORDER BY nome, id`, empreendimentoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RefEntity
	for rows.Next() {
		var ref internal.RefEntity
		if err := rows.Scan(&ref.ID, &ref.Nome); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// CreateRef inserts a new reference entity. It never deduplicates by name;
// the caller serializes creations to keep same-text duplicates out.
func (d *DB) CreateRef(ctx context.Context, kind internal.RefKind, empreendimentoID int64, nome string) (internal.RefEntity, error) {
	table, err := refTable(kind)
	if err != nil {
		return internal.RefEntity{}, err
	}

	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO `+table+` (empreendimentoId, nome) VALUES (?, ?)`, empreendimentoID, nome)
	if err != nil {
		return internal.RefEntity{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return internal.RefEntity{}, err
	}
	return internal.RefEntity{ID: id, Nome: nome}, nil
}

func (d *DB) ListUnidades(ctx context.Context, empreendimentoID int64) ([]internal.UnidadeRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, numero, blocoId, tipologiaId, andar, areaPrivativa, valor, status, descricao, observacoes
FROM unidades WHERE empreendimentoId = ? ORDER BY id`, empreendimentoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.UnidadeRecord
	for rows.Next() {
		var u internal.UnidadeRecord
		var status string
		var descricao, observacoes sql.NullString
		if err := rows.Scan(
			&u.ID, &u.Numero, &u.BlocoID, &u.TipologiaID, &u.Andar,
			&u.AreaPrivativa, &u.Valor, &status, &descricao, &observacoes,
		); err != nil {
			return nil, err
		}
		u.Status = internal.UnidadeStatus(status)
		u.Descricao = descricao.String
		u.Observacoes = observacoes.String
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkCreateUnidades inserts the whole batch in one transaction; either
// every row lands or none does.
func (d *DB) BulkCreateUnidades(ctx context.Context, empreendimentoID int64, unidades []internal.UnidadeFields) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO unidades (empreendimentoId, numero, blocoId, tipologiaId, andar, areaPrivativa, valor, status, descricao, observacoes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range unidades {
		if _, err := stmt.ExecContext(ctx,
			empreendimentoID, u.Numero, u.BlocoID, u.TipologiaID, u.Andar,
			u.AreaPrivativa, u.Valor, string(u.Status), u.Descricao, u.Observacoes,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// BulkUpdateUnidades applies the restricted duplicate-policy update (valor
// and areaPrivativa only) and records one audit line per unidade with the
// given motivo.
func (d *DB) BulkUpdateUnidades(ctx context.Context, empreendimentoID int64, updates []internal.UnidadeUpdate, motivo string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `
UPDATE unidades
SET valor = COALESCE(?, valor),
    areaPrivativa = COALESCE(?, areaPrivativa),
    updatedAt = CURRENT_TIMESTAMP
WHERE id = ? AND empreendimentoId = ?`,
			u.Valor, u.AreaPrivativa, u.ID, empreendimentoID,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unidade_alteracoes (unidadeId, motivo) VALUES (?, ?)`, u.ID, motivo,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecomputeAggregates refreshes the cached per-bloco unit counts.
func (d *DB) RecomputeAggregates(ctx context.Context, empreendimentoID int64) error {
	_, err := d.conn.ExecContext(ctx, `
UPDATE blocos
SET unidadesCount = (SELECT COUNT(*) FROM unidades WHERE unidades.blocoId = blocos.id)
WHERE empreendimentoId = ?`, empreendimentoID)
	return err
}

func (d *DB) InsertImportRun(ctx context.Context, empreendimentoID int64, counts internal.CommitResult) error {
	countsJSON, _ := json.Marshal(map[string]int{
		"created": counts.Created,
		"updated": counts.Updated,
		"skipped": counts.Skipped,
		"errors":  counts.Errors,
	})
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO import_runs (empreendimentoId, countsJson) VALUES (?, ?)`,
		empreendimentoID, string(countsJSON))
	return err
}

// BlocoResumo pairs a bloco with its cached unit count for listing.
type BlocoResumo struct {
	ID       int64
	Nome     string
	Unidades int
}

func (d *DB) ListBlocoResumos(ctx context.Context, empreendimentoID int64) ([]BlocoResumo, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, nome, unidadesCount FROM blocos WHERE empreendimentoId = ? ORDER BY nome, id`, empreendimentoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlocoResumo
	for rows.Next() {
		var b BlocoResumo
		if err := rows.Scan(&b.ID, &b.Nome, &b.Unidades); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
