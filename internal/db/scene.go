package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/storyboard.xr/internal/storyboard"
)

// Scenes returns every scene number that has at least one record.
func (db *DB) Scenes(ctx context.Context) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT scene FROM shots
		UNION
		SELECT scene FROM blockers
		ORDER BY scene`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()
	scenes := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, n)
	}
	return scenes, rows.Err()
}

// ExportScene reads one scene as a document.
func (db *DB) ExportScene(ctx context.Context, scene int) (storyboard.SceneDocument, error) {
	if scene < 1 {
		return storyboard.SceneDocument{}, storyboard.ErrInvalidScene
	}
	shots, err := listShots(ctx, db.DB, scene)
	if err != nil {
		return storyboard.SceneDocument{}, err
	}
	blockers, err := listBlockers(ctx, db.DB, scene)
	if err != nil {
		return storyboard.SceneDocument{}, err
	}
	return storyboard.SceneDocument{Scene: scene, Shots: shots, Blockers: blockers}, nil
}

// ImportScene writes a document in one transaction. With replace, the
// scene's existing records are removed first. Records without an ID get
// a fresh one; records whose ID already exists are overwritten. A shot
// letter used twice in the scene fails the whole import with
// storyboard.ErrNameTaken.
func (db *DB) ImportScene(ctx context.Context, doc storyboard.SceneDocument, replace bool) error {
	if err := doc.Normalize(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if replace {
		for _, table := range []string{"shots", "blockers"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE scene = ?`, doc.Scene); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
	}
	for _, s := range doc.Shots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if err := insertShot(ctx, tx, s, true); err != nil {
			return err
		}
	}
	for _, b := range doc.Blockers {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if err := insertBlocker(ctx, tx, b, "INSERT OR REPLACE"); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}
