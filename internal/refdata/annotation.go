package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/keepbook/internal/domain"
)

// AnnotationPatch is one entry in a transaction's append-only annotation
// history. Each field is tri-state through its *Touched flag: false
// means "unchanged by this patch"; true with a nil value means
// "explicitly cleared"; true with a non-nil value means "set to this
// value". Tags follows the same shape: TagsTouched false means
// unchanged, true with a nil slice means cleared.
type AnnotationPatch struct {
	TransactionID string
	Timestamp     time.Time

	DescriptionTouched bool
	Description        *string

	NoteTouched bool
	Note        *string

	CategoryTouched bool
	Category        *string

	TagsTouched bool
	Tags        []string
}

// materializeAnnotation folds every patch for transactionID in
// ascending (timestamp, seq) order, last-write-wins per field, mirroring
// original_source/src/models/transaction_annotation.rs's fold.
func (s *Store) materializeAnnotation(ctx context.Context, transactionID string) (*domain.Annotation, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT description_touched, description_value, note_touched, note_value,
		       category_touched, category_value, tags_touched, tags_value
		FROM transaction_annotation_patches
		WHERE transaction_id = ?
		ORDER BY timestamp ASC, seq ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("refdata: list annotation patches: %w", err)
	}
	defer rows.Close()

	var touched bool
	var annotation domain.Annotation
	for rows.Next() {
		var descTouched, noteTouched, categoryTouched, tagsTouched int
		var descValue, noteValue, categoryValue, tagsValue sql.NullString
		if err := rows.Scan(&descTouched, &descValue, &noteTouched, &noteValue,
			&categoryTouched, &categoryValue, &tagsTouched, &tagsValue); err != nil {
			return nil, fmt.Errorf("refdata: scan annotation patch: %w", err)
		}

		if descTouched != 0 {
			touched = true
			annotation.Description = nullableString(descValue)
		}
		if noteTouched != 0 {
			touched = true
			annotation.Note = nullableString(noteValue)
		}
		if categoryTouched != 0 {
			touched = true
			annotation.Category = nullableString(categoryValue)
		}
		if tagsTouched != 0 {
			touched = true
			annotation.Tags = decodeTags(tagsValue)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: list annotation patches: %w", err)
	}

	if !touched {
		return nil, nil
	}
	return &annotation, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func decodeTags(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	return strings.Split(v.String, ",")
}

func encodeTags(tags []string) string {
	return strings.Join(tags, ",")
}

// AppendAnnotationPatch inserts the next patch in a transaction's
// annotation history. seq is assigned as one past the highest seq
// already recorded for the transaction, so patches sharing a timestamp
// still fold in insertion order.
func (s *Store) AppendAnnotationPatch(ctx context.Context, patch AnnotationPatch) error {
	var maxSeq sql.NullInt64
	if err := s.db.conn.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM transaction_annotation_patches WHERE transaction_id = ?`,
		patch.TransactionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("refdata: read max annotation seq: %w", err)
	}
	seq := int64(0)
	if maxSeq.Valid {
		seq = maxSeq.Int64 + 1
	}

	id := newID()
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO transaction_annotation_patches (
			id, transaction_id, timestamp, seq,
			description_touched, description_value,
			note_touched, note_value,
			category_touched, category_value,
			tags_touched, tags_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, patch.TransactionID, patch.Timestamp.Format(timeLayout), seq,
		boolToInt(patch.DescriptionTouched), nullStringPtr(patch.Description),
		boolToInt(patch.NoteTouched), nullStringPtr(patch.Note),
		boolToInt(patch.CategoryTouched), nullStringPtr(patch.Category),
		boolToInt(patch.TagsTouched), tagsOrNil(patch),
	)
	if err != nil {
		return fmt.Errorf("refdata: insert annotation patch: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func tagsOrNil(patch AnnotationPatch) any {
	if !patch.TagsTouched {
		return nil
	}
	return encodeTags(patch.Tags)
}
