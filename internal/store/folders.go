package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
)

const folderColumns = `id, path, modality_filter, watch_enabled, created_at, last_indexed_at`

// CreateFolder registers a watched root. A duplicate path is rejected.
func (s *Store) CreateFolder(ctx context.Context, path string, filter media.Filter) (*Folder, error) {
	now := time.Now()
	var id int64
	err := s.write(ctx, "create folder", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO folders (path, modality_filter, watch_enabled, created_at)
			VALUES (?, ?, 1, ?)
			RETURNING id`,
			path, string(filter), toMillis(now)).Scan(&id)
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, terrors.New(terrors.ErrCodeAlreadyExists, "folder already watched: "+path, err)
		}
		return nil, err
	}

	return &Folder{
		ID:           id,
		Path:         path,
		Filter:       filter,
		WatchEnabled: true,
		CreatedAt:    time.UnixMilli(toMillis(now)),
	}, nil
}

// GetFolder returns the folder with the given id.
func (s *Store) GetFolder(ctx context.Context, id int64) (*Folder, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if err != nil {
		return nil, classify("get folder", err)
	}
	return f, nil
}

// ListFolders returns all folders ordered by id.
func (s *Store) ListFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.rdb.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY id`)
	if err != nil {
		return nil, classify("list folders", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, classify("list folders", err)
		}
		out = append(out, *f)
	}
	return out, classify("list folders", rows.Err())
}

// SetFolderWatch enables or disables watching for a folder.
func (s *Store) SetFolderWatch(ctx context.Context, id int64, enabled bool) error {
	return s.write(ctx, "set folder watch", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `UPDATE folders SET watch_enabled = ? WHERE id = ?`, boolInt(enabled), id)
		if err != nil {
			return err
		}
		return requireRow(res, "folder not found")
	})
}

// MarkFolderIndexed records the completion time of a scan over the folder.
func (s *Store) MarkFolderIndexed(ctx context.Context, id int64, at time.Time) error {
	return s.write(ctx, "mark folder indexed", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE folders SET last_indexed_at = ? WHERE id = ?`, toMillis(at), id)
		return err
	})
}

// DeleteFolder removes the folder row. Files below it are left to the
// caller to soft-delete.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	return s.write(ctx, "delete folder", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res, "folder not found")
	})
}

// RemoveFolder deletes the folder row and, in the same transaction,
// soft-deletes the live files below its root except those below any root
// in keep. It returns the removed folder and the number of files flagged.
// A unit writing under the root either commits first and is flagged here,
// or commits later and is refused by the folder check.
func (s *Store) RemoveFolder(ctx context.Context, id int64, keep []string) (*Folder, int64, error) {
	var (
		folder *Folder
		n      int64
	)
	err := s.withTx(ctx, "remove folder", func(tx *sql.Tx) error {
		f, err := scanFolder(tx.QueryRowContext(ctx,
			`DELETE FROM folders WHERE id = ? RETURNING `+folderColumns, id))
		if err != nil {
			return classify("remove folder", err)
		}

		query := `
			UPDATE media_files
			SET status = ?, is_deleted = 1, deleted_at = ?, deletion_notified = 0, updated_at = ?
			WHERE path LIKE ? ESCAPE '\' AND is_deleted = 0`
		now := toMillis(time.Now())
		args := []any{string(StatusDeleted), now, now, likePrefix(f.Path)}
		for _, root := range keep {
			query += ` AND path NOT LIKE ? ESCAPE '\'`
			args = append(args, likePrefix(root))
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		folder = f
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return folder, n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(r rowScanner) (*Folder, error) {
	var (
		f         Folder
		filter    string
		watch     int
		createdAt int64
		indexedAt sql.NullInt64
	)
	if err := r.Scan(&f.ID, &f.Path, &filter, &watch, &createdAt, &indexedAt); err != nil {
		return nil, err
	}
	f.Filter = media.Filter(filter)
	f.WatchEnabled = watch != 0
	f.CreatedAt = fromMillis(createdAt)
	f.LastIndexedAt = fromNullMillis(indexedAt)
	return &f, nil
}

func requireRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return terrors.NotFoundError(msg)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
