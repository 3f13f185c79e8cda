package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/infra/database"
	"github.com/totegamma/jsonkeeper/internal/infra/database/models"
)

// newActivityDB opens a file backed sqlite database with the activity tables.
// end_time is declared as datetime so the driver reads it back as a time.
func newActivityDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "activity.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE activities (
		position integer PRIMARY KEY,
		id text UNIQUE,
		kind text NOT NULL,
		document_id text,
		end_time datetime NOT NULL,
		body text NOT NULL
	)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE activity_heads (
		id integer PRIMARY KEY,
		position integer NOT NULL DEFAULT 0
	)`).Error)
	return db
}

func record(id, documentID string, kind domain.ActivityKind) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:         id,
		Kind:       kind,
		DocumentID: documentID,
		EndTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Body:       []byte(`{"id":"` + id + `"}`),
	}
}

func TestActivityRepositoryAppendIsGapless(t *testing.T) {
	repo := NewActivityRepository(newActivityDB(t))
	ctx := context.Background()

	const writers = 8
	results := make([][]domain.ActivityRecord, writers)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", w)
			stored, err := repo.Append(ctx, []domain.ActivityRecord{
				record(doc+"-reference", doc, domain.ActivityReference),
				record(doc+"-offer", doc, domain.ActivityOffer),
			})
			assert.NoError(t, err)
			results[w] = stored
		}(w)
	}
	wg.Wait()

	// each batch holds consecutive positions
	for _, stored := range results {
		require.Len(t, stored, 2)
		assert.Equal(t, stored[0].Position+1, stored[1].Position)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2*writers), count)

	all, err := repo.Range(ctx, 1, count)
	require.NoError(t, err)
	require.Len(t, all, 2*writers)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Position)
	}

	var head models.ActivityHead
	require.NoError(t, repo.db.First(&head, "id = ?", database.ActivityHeadID).Error)
	assert.Equal(t, int64(2*writers), head.Position)
}

func TestActivityRepositoryAppendNothing(t *testing.T) {
	repo := NewActivityRepository(newActivityDB(t))

	stored, err := repo.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, stored)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestActivityRepositoryLatest(t *testing.T) {
	repo := NewActivityRepository(newActivityDB(t))
	ctx := context.Background()

	_, err := repo.Latest(ctx, "doc1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Append(ctx, []domain.ActivityRecord{record("a1", "doc1", domain.ActivityCreate)})
	require.NoError(t, err)
	_, err = repo.Append(ctx, []domain.ActivityRecord{record("a2", "doc2", domain.ActivityCreate)})
	require.NoError(t, err)
	_, err = repo.Append(ctx, []domain.ActivityRecord{record("a3", "doc1", domain.ActivityDelete)})
	require.NoError(t, err)

	latest, err := repo.Latest(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "a3", latest.ID)
	assert.Equal(t, domain.ActivityDelete, latest.Kind)
	assert.Equal(t, int64(3), latest.Position)
	assert.Equal(t, `{"id":"a3"}`, string(latest.Body))
}
