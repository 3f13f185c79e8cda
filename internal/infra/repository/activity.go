package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/infra/database"
	"github.com/totegamma/jsonkeeper/internal/infra/database/models"
)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append assigns consecutive positions while holding the head row lock, so
// positions are gapless and follow commit order.
func (r *ActivityRepository) Append(ctx context.Context, records []domain.ActivityRecord) ([]domain.ActivityRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	stored := make([]domain.ActivityRecord, len(records))
	copy(stored, records)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ActivityHead{ID: database.ActivityHeadID}).Error; err != nil {
			return errors.Wrap(err, "ensure activity head")
		}

		var head models.ActivityHead
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&head, "id = ?", database.ActivityHeadID).Error
		if err != nil {
			return errors.Wrap(err, "lock activity head")
		}

		rows := make([]models.Activity, 0, len(stored))
		for i := range stored {
			head.Position++
			stored[i].Position = head.Position
			rows = append(rows, activityToModel(stored[i]))
		}

		if err := tx.Create(&rows).Error; err != nil {
			return errors.Wrap(err, "insert activities")
		}

		err = tx.Model(&models.ActivityHead{}).
			Where("id = ?", database.ActivityHeadID).
			Update("position", head.Position).Error
		if err != nil {
			return errors.Wrap(err, "advance activity head")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Activity{}).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count activities")
	}
	return count, nil
}

func (r *ActivityRepository) Range(ctx context.Context, from, to int64) ([]domain.ActivityRecord, error) {
	var rows []models.Activity
	err := r.db.WithContext(ctx).
		Where("position BETWEEN ? AND ?", from, to).
		Order("position asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load activities")
	}

	out := make([]domain.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, activityFromModel(row))
	}
	return out, nil
}

func (r *ActivityRepository) Latest(ctx context.Context, documentID string) (domain.ActivityRecord, error) {
	var row models.Activity
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("position desc").
		Take(&row).Error
	if err != nil {
		return domain.ActivityRecord{}, translate(err, "activity")
	}
	return activityFromModel(row), nil
}

func activityToModel(record domain.ActivityRecord) models.Activity {
	return models.Activity{
		Position:   record.Position,
		ID:         record.ID,
		Kind:       string(record.Kind),
		DocumentID: record.DocumentID,
		EndTime:    record.EndTime,
		Body:       string(record.Body),
	}
}

func activityFromModel(row models.Activity) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:         row.ID,
		Position:   row.Position,
		Kind:       domain.ActivityKind(row.Kind),
		DocumentID: row.DocumentID,
		EndTime:    row.EndTime,
		Body:       []byte(row.Body),
	}
}
