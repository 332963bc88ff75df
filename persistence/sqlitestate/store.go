// Package sqlitestate provides a SQLite-backed persistence.StateProvider.
package sqlitestate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"xdao.co/consign/commit"
	"xdao.co/consign/internal/sqlitemigrate"
	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/persistence/sqlitestate/migrations"
	"xdao.co/consign/validation"
)

var ErrNoTransaction = errors.New("sqlitestate: no transaction in progress")

const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists contract state in SQLite.
//
// A Store has at most one open transaction, shared by every caller; while it
// is open all reads and writes go through it.
type Store struct {
	sqlDB *sql.DB

	txMu sync.Mutex // held for the duration of a transaction
	mu   sync.Mutex
	tx   *sql.Tx
}

var _ persistence.StateProvider = (*Store)(nil)

// Open opens a SQLite state store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?" + pragmas
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle, rolling back any open transaction.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.txMu.Unlock()
	}
	s.mu.Unlock()
	return s.sqlDB.Close()
}

func (s *Store) q() querier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.sqlDB
}

func (s *Store) BeginTransaction(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		s.txMu.Unlock()
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.mu.Lock()
	s.tx = tx
	s.mu.Unlock()
	return nil
}

func (s *Store) finish(commitTx bool) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()
	if tx == nil {
		return ErrNoTransaction
	}
	defer s.txMu.Unlock()
	if commitTx {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

func (s *Store) CommitTransaction(context.Context) error   { return s.finish(true) }
func (s *Store) RollbackTransaction(context.Context) error { return s.finish(false) }

func (s *Store) schemaID(ctx context.Context, q querier, id ops.ContractID) (ops.SchemaID, bool, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT schema_id FROM contracts WHERE contract_id = ?`, id[:]).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ops.SchemaID{}, false, nil
	}
	if err != nil {
		return ops.SchemaID{}, false, fmt.Errorf("get contract: %w", err)
	}
	var schemaID ops.SchemaID
	if len(raw) != len(schemaID) {
		return ops.SchemaID{}, false, fmt.Errorf("contract %s: corrupt schema id", id)
	}
	copy(schemaID[:], raw)
	return schemaID, true, nil
}

func (s *Store) ContractState(ctx context.Context, id ops.ContractID) (persistence.ContractStateRead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := s.q()
	schemaID, ok, err := s.schemaID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sqlitestate: contract %s: %w", id, persistence.ErrUnknownContract)
	}

	rows, err := q.QueryContext(ctx, `
SELECT o.op_id, o.assignment_type, o.output_no, o.seal, o.state,
       w.witness_id, w.ord_kind, w.height, w.timestamp
FROM outputs o
LEFT JOIN witnesses w ON w.witness_id = o.witness_id
WHERE o.contract_id = ?`, id[:])
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	var outputs []persistence.OutputAssignment
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	return persistence.NewSnapshot(id, schemaID, outputs), nil
}

func scanOutput(rows *sql.Rows) (persistence.OutputAssignment, error) {
	var (
		opID, seal, state, witnessID []byte
		typ, no                      int64
		kind, height, ts             sql.NullInt64
		out                          persistence.OutputAssignment
	)
	if err := rows.Scan(&opID, &typ, &no, &seal, &state, &witnessID, &kind, &height, &ts); err != nil {
		return out, fmt.Errorf("scan output: %w", err)
	}
	if len(opID) != len(out.Opout.Op) {
		return out, errors.New("scan output: corrupt op id")
	}
	copy(out.Opout.Op[:], opID)
	out.Opout.Type = ops.AssignmentType(typ)
	out.Opout.No = uint16(no)
	if err := commit.Unmarshal(seal, &out.Seal); err != nil {
		return out, fmt.Errorf("decode seal: %w", err)
	}
	if err := commit.Unmarshal(state, &out.State); err != nil {
		return out, fmt.Errorf("decode state: %w", err)
	}
	if witnessID != nil {
		ord, err := witnessOrd(witnessID, kind.Int64, height.Int64, ts.Int64)
		if err != nil {
			return out, err
		}
		out.Witness = &ord
	}
	return out, nil
}

func witnessOrd(raw []byte, kind, height, ts int64) (ops.WitnessOrd, error) {
	var id ops.WitnessID
	if len(raw) != len(id) {
		return ops.WitnessOrd{}, errors.New("corrupt witness id")
	}
	copy(id[:], raw)
	status := ops.WitnessStatus{Kind: ops.OrdKind(kind)}
	if status.Kind == ops.OrdMined {
		status.Pos = ops.WitnessPos{Height: uint32(height), Timestamp: ts}
	}
	return ops.NewWitnessOrd(status, id), nil
}

func (s *Store) RegisterContract(ctx context.Context, schema *ops.Schema, genesis *ops.Genesis) (persistence.ContractStateWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if schema.SchemaID() != genesis.SchemaID {
		return nil, fmt.Errorf("sqlitestate: schema %s does not match genesis schema %s", schema.SchemaID(), genesis.SchemaID)
	}
	id := genesis.ContractID()
	_, err := s.q().ExecContext(ctx,
		`INSERT INTO contracts (contract_id, schema_id, created_at) VALUES (?, ?, ?)`,
		id[:], genesis.SchemaID[:], time.Now().UTC().UnixMilli(),
	)
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("register contract: %w", err)
	}
	return &writer{s: s, id: id}, nil
}

func (s *Store) UpdateContract(ctx context.Context, id ops.ContractID) (persistence.ContractStateWrite, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	_, ok, err := s.schemaID(ctx, s.q(), id)
	if err != nil || !ok {
		return nil, false, err
	}
	return &writer{s: s, id: id}, true, nil
}

func (s *Store) UpdateWitnesses(ctx context.Context, resolver validation.ResolveWitness, afterHeight uint32) (persistence.UpdateRes, error) {
	res := persistence.NewUpdateRes()
	q := s.q()
	rows, err := q.QueryContext(ctx, `
SELECT witness_id, ord_kind, height, timestamp FROM witnesses
WHERE ord_kind != ? OR height >= ?
ORDER BY witness_id`, int64(ops.OrdMined), int64(afterHeight))
	if err != nil {
		return res, fmt.Errorf("list witnesses: %w", err)
	}
	var pending []ops.WitnessOrd
	for rows.Next() {
		var (
			raw              []byte
			kind, height, ts int64
		)
		if err := rows.Scan(&raw, &kind, &height, &ts); err != nil {
			rows.Close()
			return res, fmt.Errorf("scan witness: %w", err)
		}
		ord, err := witnessOrd(raw, kind, height, ts)
		if err != nil {
			rows.Close()
			return res, err
		}
		pending = append(pending, ord)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("list witnesses: %w", err)
	}

	for _, old := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		status, err := resolver.ResolvePubWitnessOrd(ctx, old.Witness)
		if err != nil {
			res.Failed[old.Witness] = err.Error()
			continue
		}
		if status.Compare(old.Ord) == 0 {
			continue
		}
		if err := putWitness(ctx, q, old.Witness, status); err != nil {
			return res, err
		}
		res.Succeeded[old.Witness] = ops.NewWitnessOrd(status, old.Witness)
	}
	return res, nil
}

// putWitness upserts the order of a witness.
func putWitness(ctx context.Context, q querier, id ops.WitnessID, status ops.WitnessStatus) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO witnesses (witness_id, ord_kind, height, timestamp, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (witness_id) DO UPDATE SET ord_kind = excluded.ord_kind, height = excluded.height,
    timestamp = excluded.timestamp, updated_at = excluded.updated_at`,
		id[:], int64(status.Kind), int64(status.Pos.Height), status.Pos.Timestamp, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put witness %s: %w", id, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type writer struct {
	s  *Store
	id ops.ContractID
}

func (w *writer) apply(ctx context.Context, op ops.Operation, witness *ops.WitnessOrd) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := w.s.q()
	id := op.ID()

	// The supplied order replaces any order known for the witness.
	var witnessID []byte
	if witness != nil {
		if err := putWitness(ctx, q, witness.Witness, witness.Ord); err != nil {
			return err
		}
		witnessID = witness.Witness[:]
	}

	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM operations WHERE contract_id = ? AND op_id = ?`, w.id[:], id[:]).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check operation: %w", err)
	}

	body, err := commit.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO operations (contract_id, op_id, kind, body, witness_id) VALUES (?, ?, ?, ?, ?)`,
		w.id[:], id[:], int64(op.Kind()), body, witnessID,
	); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("sqlitestate: contract %s: %w", w.id, persistence.ErrUnknownContract)
		}
		return fmt.Errorf("insert operation: %w", err)
	}

	for _, prev := range op.PrevOuts() {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM outputs WHERE contract_id = ? AND op_id = ? AND assignment_type = ? AND output_no = ?`,
			w.id[:], prev.Op[:], int64(prev.Type), int64(prev.No),
		); err != nil {
			return fmt.Errorf("spend output: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO spent (contract_id, op_id, assignment_type, output_no, spent_by) VALUES (?, ?, ?, ?, ?)`,
			w.id[:], prev.Op[:], int64(prev.Type), int64(prev.No), id[:],
		); err != nil {
			return fmt.Errorf("record spend: %w", err)
		}
	}

	outs := op.Outputs()
	for i, ref := range ops.OutputRefs(op) {
		state := persistence.FromState(outs[i].State)
		sealBytes, err := commit.Marshal(outs[i].Seal)
		if err != nil {
			return fmt.Errorf("encode seal: %w", err)
		}
		stateBytes, err := commit.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		// Outputs consumed by an operation applied earlier are not held.
		if _, err := q.ExecContext(ctx, `
INSERT OR IGNORE INTO outputs (contract_id, op_id, assignment_type, output_no, state_kind, seal, state, witness_id)
SELECT ?, ?, ?, ?, ?, ?, ?, ?
WHERE NOT EXISTS (
    SELECT 1 FROM spent WHERE contract_id = ? AND op_id = ? AND assignment_type = ? AND output_no = ?
)`,
			w.id[:], id[:], int64(ref.Type), int64(ref.No), int64(state.Kind), sealBytes, stateBytes, witnessID,
			w.id[:], id[:], int64(ref.Type), int64(ref.No),
		); err != nil {
			return fmt.Errorf("insert output: %w", err)
		}
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

func (w *writer) AddGenesis(ctx context.Context, g *ops.Genesis) error {
	if g.ContractID() != w.id {
		return fmt.Errorf("sqlitestate: genesis of %s added to contract %s", g.ContractID(), w.id)
	}
	return w.apply(ctx, g, nil)
}

func (w *writer) AddTransition(ctx context.Context, t *ops.Transition, ord ops.WitnessOrd) error {
	return w.apply(ctx, t, &ord)
}

func (w *writer) AddExtension(ctx context.Context, x *ops.Extension, ord ops.WitnessOrd) error {
	return w.apply(ctx, x, &ord)
}
