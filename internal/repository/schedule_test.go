package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/chime/internal/database"
	"github.com/hray3182/chime/internal/models"
)

func TestEncodeRepeat(t *testing.T) {
	b, err := encodeRepeat(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = encodeRepeat(&models.Repeat{Kind: models.RepeatWeekly, Days: []int{1, 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"weekly","days":[1,3]}`, string(b))
}

// Runs against a real Postgres when CHIME_TEST_DATABASE_URI is set.
func TestReplaceRoundTrip(t *testing.T) {
	uri := os.Getenv("CHIME_TEST_DATABASE_URI")
	if uri == "" {
		t.Skip("CHIME_TEST_DATABASE_URI not set")
	}
	ctx := context.Background()
	db, err := database.New(ctx, uri)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	repo := NewScheduleRepository(db)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	in := []models.Schedule{
		{ID: "a", Title: "朝会", Time: "09:00", Repeat: &models.Repeat{Kind: models.RepeatWeekly, Days: []int{1, 3}},
			PreNotified: true, LastOccurrenceKey: "2026-10-12", CreatedAt: created, UpdatedAt: created},
		{ID: "b", Title: "歯医者", Date: "2026-10-20", Time: "15:30", CreatedAt: created.Add(time.Minute), UpdatedAt: created},
	}

	out, err := repo.Replace(ctx, in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, []int{1, 3}, out[0].Repeat.Days)
	assert.True(t, out[0].PreNotified)
	assert.Nil(t, out[1].Repeat)

	out, err = repo.Replace(ctx, in[1:])
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, out, listed)
}
