package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// Save replaces the stored snapshot with packages in a single transaction.
func (s *Store) Save(ctx context.Context, packages []Record) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return s.save(ctx, packages)
	})
}

func (s *Store) save(ctx context.Context, packages []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM transfers"); err != nil {
		return fmt.Errorf("clear transfers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM packages"); err != nil {
		return fmt.Errorf("clear packages: %w", err)
	}

	pkgStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO packages (position, "+packageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare package insert: %w", err)
	}
	defer pkgStmt.Close()

	transferStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO transfers (position, "+transferColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare transfer insert: %w", err)
	}
	defer transferStmt.Close()

	for pos, pkg := range packages {
		if _, err := pkgStmt.ExecContext(ctx,
			pos,
			pkg.ID,
			pkg.Name,
			nullableString(pkg.Suffix),
			string(pkg.Status),
			int(pkg.Priority),
			nullableString(pkg.Category),
			boolToInt(pkg.CreateSubfolder),
			boolToInt(pkg.CancelRequested),
		); err != nil {
			return fmt.Errorf("insert package %s: %w", pkg.ID, err)
		}
		for childPos, tr := range pkg.Children {
			if err := insertTransfer(ctx, transferStmt, childPos, pkg.ID, tr); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func insertTransfer(ctx context.Context, stmt *sql.Stmt, pos int, packageID string, tr Record) error {
	headers, err := nullableJSON(tr.RequestHeaders, len(tr.RequestHeaders) == 0)
	if err != nil {
		return fmt.Errorf("encode headers for %s: %w", tr.ID, err)
	}
	interaction, err := nullableJSON(tr.Interaction, tr.Interaction == nil)
	if err != nil {
		return fmt.Errorf("encode interaction for %s: %w", tr.ID, err)
	}
	method := tr.RequestMethod
	if method == "" {
		method = "GET"
	}
	if _, err := stmt.ExecContext(ctx,
		pos,
		tr.ID,
		packageID,
		tr.Name,
		string(tr.Status),
		int(tr.Priority),
		nullableString(tr.Category),
		boolToInt(tr.CreateSubfolder),
		nullableString(tr.ErrorString),
		tr.URL,
		method,
		headers,
		nullableString(tr.PostData),
		nullableString(tr.DownloadPath),
		nullableString(tr.FileName),
		nullableString(tr.CustomCommand),
		boolToInt(tr.CustomCommandOverride),
		boolToInt(tr.UsePlugins),
		nullableString(tr.PluginID),
		nullableString(tr.PluginIconPath),
		tr.BytesTransferred,
		tr.Size,
		interaction,
		nullableTime(tr.WaitUntil),
	); err != nil {
		return fmt.Errorf("insert transfer %s: %w", tr.ID, err)
	}
	return nil
}

// Load returns the stored snapshot: packages in order, each with its
// transfers in order.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx, "SELECT "+packageColumns+" FROM packages ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	var packages []Record
	index := map[string]int{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan package: %w", err)
		}
		index[pkg.ID] = len(packages)
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate packages: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT "+transferColumns+" FROM transfers ORDER BY package_id, position")
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		i, ok := index[tr.ParentID]
		if !ok {
			continue
		}
		packages[i].Children = append(packages[i].Children, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return packages, nil
}
