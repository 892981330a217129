package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/banshee-data/storyboard.xr/internal/storyboard"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const shotColumns = `id, scene, name, tx, ty, tz, rx, ry, rz, rw, sx, sy, sz,
	enable_translation, enable_rotation, enable_scale, notes, placed_by,
	created_at_ns, updated_at_ns`

const blockerColumns = `id, scene, name, need_initialization, orientation_lock,
	tx, ty, tz, rx, ry, rz, rw, sx, sy, sz, notes, created_at_ns, updated_at_ns`

func transformArgs(t storyboard.Transform) []any {
	return []any{
		t.Translation[0], t.Translation[1], t.Translation[2],
		t.Rotation[0], t.Rotation[1], t.Rotation[2], t.Rotation[3],
		t.Scale[0], t.Scale[1], t.Scale[2],
	}
}

func transformDest(t *storyboard.Transform) []any {
	return []any{
		&t.Translation[0], &t.Translation[1], &t.Translation[2],
		&t.Rotation[0], &t.Rotation[1], &t.Rotation[2], &t.Rotation[3],
		&t.Scale[0], &t.Scale[1], &t.Scale[2],
	}
}

func scanShot(row scanner) (storyboard.ShotRecord, error) {
	var (
		s                    storyboard.ShotRecord
		id, name, placedBy   string
		enT, enR, enS        int
		createdNs, updatedNs int64
	)
	dest := []any{&id, &s.Scene, &name}
	dest = append(dest, transformDest(&s.Transform)...)
	dest = append(dest, &enT, &enR, &enS, &s.Notes, &placedBy, &createdNs, &updatedNs)
	if err := row.Scan(dest...); err != nil {
		return s, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return s, fmt.Errorf("bad shot id %q: %w", id, err)
	}
	if err := s.PlacedBy.UnmarshalText([]byte(placedBy)); err != nil {
		return s, fmt.Errorf("shot %s: %w", id, err)
	}
	s.ID = parsed
	s.Name = storyboard.ShotName(name)
	s.EnableTranslation, s.EnableRotation, s.EnableScale = enT == 1, enR == 1, enS == 1
	s.CreatedAt = time.Unix(0, createdNs).UTC()
	s.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return s, nil
}

func scanBlocker(row scanner) (storyboard.BlockerRecord, error) {
	var (
		b                    storyboard.BlockerRecord
		id                   string
		needInit, lock       int
		createdNs, updatedNs int64
	)
	dest := []any{&id, &b.Scene, &b.Name, &needInit, &lock}
	dest = append(dest, transformDest(&b.Transform)...)
	dest = append(dest, &b.Notes, &createdNs, &updatedNs)
	if err := row.Scan(dest...); err != nil {
		return b, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return b, fmt.Errorf("bad blocker id %q: %w", id, err)
	}
	b.ID = parsed
	b.NeedInitialization = needInit == 1
	b.OrientationLock = lock == 1
	b.CreatedAt = time.Unix(0, createdNs).UTC()
	b.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return b, nil
}

func shotArgs(s storyboard.ShotRecord) []any {
	args := []any{s.ID.String(), s.Scene, string(s.Name)}
	args = append(args, transformArgs(s.Transform)...)
	return append(args,
		boolInt(s.EnableTranslation), boolInt(s.EnableRotation), boolInt(s.EnableScale),
		s.Notes, s.PlacedBy.String(), s.CreatedAt.UnixNano(), s.UpdatedAt.UnixNano())
}

func blockerArgs(b storyboard.BlockerRecord) []any {
	args := []any{b.ID.String(), b.Scene, b.Name, boolInt(b.NeedInitialization), boolInt(b.OrientationLock)}
	args = append(args, transformArgs(b.Transform)...)
	return append(args, b.Notes, b.CreatedAt.UnixNano(), b.UpdatedAt.UnixNano())
}

// shotUpsert overwrites a shot with the same id. Unlike INSERT OR
// REPLACE it never deletes a different shot holding the same letter.
const shotUpsert = ` ON CONFLICT (id) DO UPDATE SET
	scene = excluded.scene, name = excluded.name,
	tx = excluded.tx, ty = excluded.ty, tz = excluded.tz,
	rx = excluded.rx, ry = excluded.ry, rz = excluded.rz, rw = excluded.rw,
	sx = excluded.sx, sy = excluded.sy, sz = excluded.sz,
	enable_translation = excluded.enable_translation,
	enable_rotation = excluded.enable_rotation,
	enable_scale = excluded.enable_scale,
	notes = excluded.notes, placed_by = excluded.placed_by,
	created_at_ns = excluded.created_at_ns, updated_at_ns = excluded.updated_at_ns`

func insertShot(ctx context.Context, q querier, s storyboard.ShotRecord, upsert bool) error {
	query := `INSERT INTO shots (` + shotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += shotUpsert
	}
	if _, err := q.ExecContext(ctx, query, shotArgs(s)...); err != nil {
		if isNameViolation(err) {
			return nameTaken(s)
		}
		return fmt.Errorf("failed to insert shot: %w", err)
	}
	return nil
}

// isNameViolation reports whether err is the per-scene shot letter index
// rejecting a write. A clashing id also reads "UNIQUE constraint failed".
func isNameViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "shots.name")
}

func nameTaken(s storyboard.ShotRecord) error {
	return fmt.Errorf("shot %s in scene %d: %w", s.Name.Display(), s.Scene, storyboard.ErrNameTaken)
}

func insertBlocker(ctx context.Context, q querier, b storyboard.BlockerRecord, verb string) error {
	_, err := q.ExecContext(ctx,
		verb+` INTO blockers (`+blockerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		blockerArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to insert blocker: %w", err)
	}
	return nil
}

func listShots(ctx context.Context, q querier, scene int) ([]storyboard.ShotRecord, error) {
	query := `SELECT ` + shotColumns + ` FROM shots`
	var args []any
	if scene > 0 {
		query += ` WHERE scene = ?`
		args = append(args, scene)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY scene, created_at_ns, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shots: %w", err)
	}
	defer rows.Close()

	shots := []storyboard.ShotRecord{}
	for rows.Next() {
		s, err := scanShot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shot: %w", err)
		}
		shots = append(shots, s)
	}
	return shots, rows.Err()
}

func listBlockers(ctx context.Context, q querier, scene int) ([]storyboard.BlockerRecord, error) {
	query := `SELECT ` + blockerColumns + ` FROM blockers`
	var args []any
	if scene > 0 {
		query += ` WHERE scene = ?`
		args = append(args, scene)
	}
	rows, err := q.QueryContext(ctx, query+` ORDER BY scene, created_at_ns, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blockers: %w", err)
	}
	defer rows.Close()

	blockers := []storyboard.BlockerRecord{}
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		blockers = append(blockers, b)
	}
	return blockers, rows.Err()
}

// InsertShot stores a new shot. A letter already used in the scene
// fails with storyboard.ErrNameTaken.
func (db *DB) InsertShot(ctx context.Context, s storyboard.ShotRecord) error {
	return insertShot(ctx, db.DB, s, false)
}

// ListShots returns the shots of a scene in placement order. A scene of
// 0 lists every scene.
func (db *DB) ListShots(ctx context.Context, scene int) ([]storyboard.ShotRecord, error) {
	return listShots(ctx, db.DB, scene)
}

// GetShot returns one shot or ErrNotFound.
func (db *DB) GetShot(ctx context.Context, id uuid.UUID) (storyboard.ShotRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+shotColumns+` FROM shots WHERE id = ?`, id.String())
	s, err := scanShot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("shot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("failed to get shot: %w", err)
	}
	return s, nil
}

// UpdateShot overwrites an existing shot. Renaming to a letter already
// used in the scene fails with storyboard.ErrNameTaken.
func (db *DB) UpdateShot(ctx context.Context, s storyboard.ShotRecord) error {
	args := []any{s.Scene, string(s.Name)}
	args = append(args, transformArgs(s.Transform)...)
	args = append(args,
		boolInt(s.EnableTranslation), boolInt(s.EnableRotation), boolInt(s.EnableScale),
		s.Notes, s.PlacedBy.String(), s.UpdatedAt.UnixNano(), s.ID.String())
	res, err := db.ExecContext(ctx, `
		UPDATE shots SET
			scene = ?, name = ?, tx = ?, ty = ?, tz = ?, rx = ?, ry = ?, rz = ?, rw = ?,
			sx = ?, sy = ?, sz = ?, enable_translation = ?, enable_rotation = ?,
			enable_scale = ?, notes = ?, placed_by = ?, updated_at_ns = ?
		WHERE id = ?`, args...)
	if isNameViolation(err) {
		return nameTaken(s)
	}
	if err != nil {
		return fmt.Errorf("failed to update shot: %w", err)
	}
	return expectOne(res, "shot", s.ID)
}

// DeleteShot removes a shot.
func (db *DB) DeleteShot(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM shots WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete shot: %w", err)
	}
	return expectOne(res, "shot", id)
}

// InsertBlocker stores a new blocker.
func (db *DB) InsertBlocker(ctx context.Context, b storyboard.BlockerRecord) error {
	return insertBlocker(ctx, db.DB, b, "INSERT")
}

// ListBlockers returns the blockers of a scene. A scene of 0 lists every
// scene.
func (db *DB) ListBlockers(ctx context.Context, scene int) ([]storyboard.BlockerRecord, error) {
	return listBlockers(ctx, db.DB, scene)
}

// GetBlocker returns one blocker or ErrNotFound.
func (db *DB) GetBlocker(ctx context.Context, id uuid.UUID) (storyboard.BlockerRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id = ?`, id.String())
	b, err := scanBlocker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("blocker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return b, fmt.Errorf("failed to get blocker: %w", err)
	}
	return b, nil
}

// UpdateBlocker overwrites an existing blocker.
func (db *DB) UpdateBlocker(ctx context.Context, b storyboard.BlockerRecord) error {
	args := []any{b.Scene, b.Name, boolInt(b.NeedInitialization), boolInt(b.OrientationLock)}
	args = append(args, transformArgs(b.Transform)...)
	args = append(args, b.Notes, b.UpdatedAt.UnixNano(), b.ID.String())
	res, err := db.ExecContext(ctx, `
		UPDATE blockers SET
			scene = ?, name = ?, need_initialization = ?, orientation_lock = ?,
			tx = ?, ty = ?, tz = ?, rx = ?, ry = ?, rz = ?, rw = ?, sx = ?, sy = ?, sz = ?,
			notes = ?, updated_at_ns = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update blocker: %w", err)
	}
	return expectOne(res, "blocker", b.ID)
}

// DeleteBlocker removes a blocker.
func (db *DB) DeleteBlocker(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM blockers WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blocker: %w", err)
	}
	return expectOne(res, "blocker", id)
}

func expectOne(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
