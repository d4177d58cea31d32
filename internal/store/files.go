package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/media"
)

var fileColumnList = []string{
	"id", "path", "filename", "folder_id", "modality", "mime_type", "size",
	"content_hash", "modified_at", "status", "is_deleted", "deleted_at",
	"deletion_notified", "indexed_at", "last_error", "created_at", "updated_at",
}

var (
	fileColumns  = strings.Join(fileColumnList, ", ")
	fileColumnsF = prefixed("f", fileColumnList)
)

func prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// scanFile reads one media_files row. Extra destinations are scanned after
// the file columns.
func scanFile(r rowScanner, extra ...any) (*MediaFile, error) {
	var (
		f                  MediaFile
		folderID           sql.NullInt64
		modality, status   string
		modTime, createdAt int64
		updatedAt          int64
		deleted, notified  int
		deletedAt, indexed sql.NullInt64
	)
	dest := []any{
		&f.ID, &f.Path, &f.Filename, &folderID, &modality, &f.MimeType, &f.Size,
		&f.ContentHash, &modTime, &status, &deleted, &deletedAt,
		&notified, &indexed, &f.LastError, &createdAt, &updatedAt,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	f.FolderID = folderID.Int64
	f.Modality = media.Modality(modality)
	f.Status = FileStatus(status)
	f.ModTime = fromMillis(modTime)
	f.Deleted = deleted != 0
	f.DeletedAt = fromNullMillis(deletedAt)
	f.DeletionNotified = notified != 0
	f.IndexedAt = fromNullMillis(indexed)
	f.CreatedAt = fromMillis(createdAt)
	f.UpdatedAt = fromMillis(updatedAt)
	return &f, nil
}

// GetFileByPath returns the row for path, soft-deleted or not.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*MediaFile, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM media_files WHERE path = ?`, path)
	f, err := scanFile(row)
	if err != nil {
		return nil, classify("get file "+path, err)
	}
	return f, nil
}

// GetFile returns the row with the given id.
func (s *Store) GetFile(ctx context.Context, id int64) (*MediaFile, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM media_files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err != nil {
		return nil, classify(fmt.Sprintf("get file %d", id), err)
	}
	return f, nil
}

// ListFilesUnder returns the rows whose path lies below root.
func (s *Store) ListFilesUnder(ctx context.Context, root string, includeDeleted bool) ([]MediaFile, error) {
	query := `SELECT ` + fileColumns + ` FROM media_files WHERE path LIKE ? ESCAPE '\'`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY path`

	rows, err := s.rdb.QueryContext(ctx, query, likePrefix(root))
	if err != nil {
		return nil, classify("list files", err)
	}
	defer rows.Close()

	var out []MediaFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, classify("list files", err)
		}
		out = append(out, *f)
	}
	return out, classify("list files", rows.Err())
}

// EnsurePending records a newly discovered file as pending. Existing rows are
// left untouched so a prior embedding stays authoritative until replaced.
// Nothing is recorded when f's folder no longer exists.
func (s *Store) EnsurePending(ctx context.Context, f *MediaFile) error {
	now := toMillis(time.Now())
	return s.write(ctx, "ensure pending", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO media_files (path, filename, folder_id, modality, mime_type, size,
				content_hash, modified_at, status, created_at, updated_at)
			SELECT ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?
			WHERE `+folderLive+`
			ON CONFLICT(path) DO NOTHING`,
			f.Path, filename(f), nullID(f.FolderID), f.Modality.String(), f.MimeType, f.Size,
			toMillis(f.ModTime), string(StatusPending), now, now,
			f.FolderID, f.FolderID)
		return err
	})
}

// Upsert writes the file as indexed together with its embedding in one
// transaction. The file row is keyed by path; the embedding replaces any
// previous vector for the same (file, modality, model version). It returns
// ErrFolderRemoved, and writes nothing, when f's folder no longer exists.
func (s *Store) Upsert(ctx context.Context, f *MediaFile, emb *Embedding) (int64, error) {
	if emb == nil || len(emb.Vector) == 0 {
		return 0, fmt.Errorf("upsert %s: empty embedding", f.Path)
	}

	var id int64
	err := s.withTx(ctx, "upsert "+f.Path, func(tx *sql.Tx) error {
		now := time.Now()
		var err error
		id, err = upsertFileRow(ctx, tx, f, StatusIndexed, &now, "", now)
		if err != nil {
			return err
		}

		modality := emb.Modality
		if modality == "" || modality == media.ModalityUnknown {
			modality = f.Modality
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (file_id, modality, model_version, content_hash, dimensions, vector, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id, modality, model_version) DO UPDATE SET
				content_hash = excluded.content_hash,
				dimensions = excluded.dimensions,
				vector = excluded.vector,
				created_at = excluded.created_at`,
			id, modality.String(), emb.ModelVersion, f.ContentHash, len(emb.Vector),
			embeddingToBytes(emb.Vector), toMillis(now))
		return err
	})
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

// MarkFailed records a terminal per-file failure. The row takes the new
// content hash, so an older embedding no longer matches and drops out of
// search. Like Upsert it refuses rows whose folder no longer exists.
func (s *Store) MarkFailed(ctx context.Context, f *MediaFile, reason string) error {
	return s.write(ctx, "mark failed "+f.Path, func(ctx context.Context) error {
		_, err := upsertFileRow(ctx, s.db, f, StatusFailed, nil, reason, time.Now())
		return err
	})
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// folderLive is a WHERE condition binding a folder id twice. It holds when
// the id is zero (no folder) or names an existing folder.
const folderLive = `(? = 0 OR EXISTS (SELECT 1 FROM folders WHERE id = ?))`

// upsertFileRow creates or replaces the row for f.Path and clears any soft
// delete. The folder check runs in the same statement, so a row is never
// revived after its folder was removed.
func upsertFileRow(ctx context.Context, q queryRower, f *MediaFile, status FileStatus, indexedAt *time.Time, lastErr string, now time.Time) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO media_files (path, filename, folder_id, modality, mime_type, size,
			content_hash, modified_at, status, is_deleted, deleted_at, deletion_notified,
			indexed_at, last_error, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, 0, ?, ?, ?, ?
		WHERE `+folderLive+`
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			folder_id = COALESCE(excluded.folder_id, media_files.folder_id),
			modality = excluded.modality,
			mime_type = excluded.mime_type,
			size = excluded.size,
			content_hash = excluded.content_hash,
			modified_at = excluded.modified_at,
			status = excluded.status,
			is_deleted = 0,
			deleted_at = NULL,
			deletion_notified = 0,
			indexed_at = COALESCE(excluded.indexed_at, media_files.indexed_at),
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING id`,
		f.Path, filename(f), nullID(f.FolderID), f.Modality.String(), f.MimeType, f.Size,
		f.ContentHash, toMillis(f.ModTime), string(status),
		nullMillis(indexedAt), lastErr, toMillis(now), toMillis(now),
		f.FolderID, f.FolderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, terrors.New(terrors.ErrCodeFolderRemoved,
			fmt.Sprintf("folder %d was removed; not recording %s", f.FolderID, f.Path), nil)
	}
	return id, err
}

// SoftDelete flags the file at path as deleted and keeps its embedding.
// It reports whether a live row was flagged.
func (s *Store) SoftDelete(ctx context.Context, path string) (bool, error) {
	var n int64
	err := s.write(ctx, "soft delete "+path, func(ctx context.Context) error {
		now := toMillis(time.Now())
		res, err := s.db.ExecContext(ctx, `
			UPDATE media_files
			SET status = ?, is_deleted = 1, deleted_at = ?, deletion_notified = 0, updated_at = ?
			WHERE path = ? AND is_deleted = 0`,
			string(StatusDeleted), now, now, path)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n > 0, err
}

// SoftDeleteUnder flags every live file below root and returns the count.
func (s *Store) SoftDeleteUnder(ctx context.Context, root string) (int64, error) {
	var n int64
	err := s.write(ctx, "soft delete under "+root, func(ctx context.Context) error {
		now := toMillis(time.Now())
		res, err := s.db.ExecContext(ctx, `
			UPDATE media_files
			SET status = ?, is_deleted = 1, deleted_at = ?, deletion_notified = 0, updated_at = ?
			WHERE path LIKE ? ESCAPE '\' AND is_deleted = 0`,
			string(StatusDeleted), now, now, likePrefix(root))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Restore clears the soft-delete flag when the file reappears with the hash
// it had when deleted and its embedding for modelVersion is still present.
// It reports false when the caller must re-embed instead, which includes a
// row whose folder was removed.
func (s *Store) Restore(ctx context.Context, path, hash, modelVersion string, modTime time.Time) (bool, error) {
	var n int64
	err := s.write(ctx, "restore "+path, func(ctx context.Context) error {
		now := toMillis(time.Now())
		res, err := s.db.ExecContext(ctx, `
			UPDATE media_files
			SET status = ?, is_deleted = 0, deleted_at = NULL, deletion_notified = 0,
				last_error = '', modified_at = ?, updated_at = ?
			WHERE path = ? AND is_deleted = 1 AND content_hash = ?
				AND (folder_id IS NULL OR EXISTS (SELECT 1 FROM folders WHERE id = media_files.folder_id))
				AND EXISTS (
					SELECT 1 FROM embeddings e
					WHERE e.file_id = media_files.id
						AND e.model_version = ?
						AND e.content_hash = media_files.content_hash
				)`,
			string(StatusIndexed), toMillis(modTime), now, path, hash, modelVersion)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n > 0, err
}

// MarkDeletionNotified records that the deletion warning for ids was shown.
func (s *Store) MarkDeletionNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.write(ctx, "mark deletion notified", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE media_files SET deletion_notified = 1 WHERE is_deleted = 1 AND id IN (`+placeholders+`)`,
			args...)
		return err
	})
}

// GetEmbedding returns the stored vector of a file.
func (s *Store) GetEmbedding(ctx context.Context, fileID int64, modality media.Modality, modelVersion string) (*Embedding, error) {
	var (
		e         Embedding
		mod       string
		blob      []byte
		createdAt int64
	)
	err := s.rdb.QueryRowContext(ctx, `
		SELECT file_id, modality, model_version, content_hash, vector, created_at
		FROM embeddings WHERE file_id = ? AND modality = ? AND model_version = ?`,
		fileID, modality.String(), modelVersion).Scan(&e.FileID, &mod, &e.ModelVersion, &e.ContentHash, &blob, &createdAt)
	if err != nil {
		return nil, classify(fmt.Sprintf("get embedding %d", fileID), err)
	}
	vec, err := bytesToEmbedding(blob)
	if err != nil {
		return nil, classify("decode embedding", err)
	}
	e.Modality = media.Modality(mod)
	e.Vector = vec
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}

// Stats counts folders, files and embeddings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{FilesByModality: make(map[string]int)}

	err := s.rdb.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM folders),
			(SELECT COUNT(*) FROM media_files WHERE is_deleted = 0),
			(SELECT COUNT(*) FROM media_files WHERE is_deleted = 1),
			(SELECT COUNT(*) FROM media_files WHERE status = 'failed'),
			(SELECT COUNT(*) FROM embeddings)`).
		Scan(&st.Folders, &st.Files, &st.DeletedFiles, &st.FailedFiles, &st.Embeddings)
	if err != nil {
		return nil, classify("stats", err)
	}

	rows, err := s.rdb.QueryContext(ctx,
		`SELECT modality, COUNT(*) FROM media_files WHERE is_deleted = 0 GROUP BY modality`)
	if err != nil {
		return nil, classify("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mod string
			n   int
		)
		if err := rows.Scan(&mod, &n); err != nil {
			return nil, classify("stats", err)
		}
		st.FilesByModality[mod] = n
	}
	return st, classify("stats", rows.Err())
}

func filename(f *MediaFile) string {
	if f.Filename != "" {
		return f.Filename
	}
	return filepath.Base(f.Path)
}
