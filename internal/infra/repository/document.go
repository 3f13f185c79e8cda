package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/infra/database/models"
)

// metadataColumns is every document column except the payload.
var metadataColumns = []string{"id", "owner_mode", "owner_value", "unlisted", "is_json_ld", "c_date", "m_date"}

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) error {
	row := documentToModel(doc)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "create document %s", doc.ID)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (domain.Document, error) {
	var row models.Document
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		return domain.Document{}, translate(err, "document")
	}
	return documentFromModel(row), nil
}

func (r *DocumentRepository) GetMetadata(ctx context.Context, id string) (domain.Metadata, error) {
	var row models.Document
	err := r.db.WithContext(ctx).Select(metadataColumns).First(&row, "id = ?", id).Error
	if err != nil {
		return domain.Metadata{}, translate(err, "document")
	}
	return documentFromModel(row).Metadata(), nil
}

func (r *DocumentRepository) Update(ctx context.Context, id string, fn func(domain.Document) (domain.Document, error)) (domain.Document, error) {
	var updated domain.Document

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error
		if err != nil {
			return translate(err, "document")
		}

		next, err := fn(documentFromModel(row))
		if err != nil {
			return err
		}

		err = tx.Model(&models.Document{}).Where("id = ?", id).Updates(map[string]any{
			"payload":  string(next.Payload),
			"unlisted": next.Unlisted,
			"m_date":   next.UpdatedAt,
		}).Error
		if err != nil {
			return errors.Wrapf(err, "update document %s", id)
		}

		updated = next
		return nil
	})

	return updated, err
}

func (r *DocumentRepository) UpdateUnlisted(ctx context.Context, id string, unlisted bool) (domain.Document, error) {
	return r.Update(ctx, id, func(current domain.Document) (domain.Document, error) {
		current.Unlisted = unlisted
		return current, nil
	})
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete document %s", id)
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "document"}
	}
	return nil
}

func (r *DocumentRepository) DeleteIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_mode = ?", id, domain.OwnershipNone.String()).
		Where("GREATEST(c_date, COALESCE(m_date, c_date)) < ?", cutoff).
		Delete(&models.Document{})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "delete stale document %s", id)
	}
	return result.RowsAffected > 0, nil
}

func (r *DocumentRepository) ListMetadata(ctx context.Context) ([]domain.Metadata, error) {
	var rows []models.Document
	err := r.db.WithContext(ctx).Select(metadataColumns).Order("c_date asc").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}

	out := make([]domain.Metadata, 0, len(rows))
	for _, row := range rows {
		out = append(out, documentFromModel(row).Metadata())
	}
	return out, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, owner domain.Ownership) ([]domain.Document, error) {
	var rows []models.Document
	err := r.db.WithContext(ctx).
		Where("owner_mode = ? AND owner_value = ?", owner.Mode.String(), owner.Value).
		Order("c_date asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list documents by owner")
	}

	out := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, documentFromModel(row))
	}
	return out, nil
}

func (r *DocumentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count documents")
	}
	return count, nil
}

func documentToModel(doc domain.Document) models.Document {
	return models.Document{
		ID:         doc.ID,
		Payload:    string(doc.Payload),
		OwnerMode:  doc.Ownership.Mode.String(),
		OwnerValue: doc.Ownership.Value,
		Unlisted:   doc.Unlisted,
		IsJSONLD:   doc.IsJSONLD,
		CDate:      doc.CreatedAt,
		MDate:      doc.UpdatedAt,
	}
}

func documentFromModel(row models.Document) domain.Document {
	return domain.Document{
		ID:      row.ID,
		Payload: []byte(row.Payload),
		Ownership: domain.Ownership{
			Mode:  domain.ParseOwnershipMode(row.OwnerMode),
			Value: row.OwnerValue,
		},
		Unlisted:  row.Unlisted,
		IsJSONLD:  row.IsJSONLD,
		CreatedAt: row.CDate,
		UpdatedAt: row.MDate,
	}
}

func translate(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: resource}
	}
	return errors.Wrapf(err, "load %s", resource)
}
