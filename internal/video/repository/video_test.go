package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/common/db/dbtest"
)

func TestVideoRepository(t *testing.T) {
	now := time.Now()
	fake := dbtest.New(
		dbtest.Handler{Match: "FOR UPDATE", Rows: [][]interface{}{{int64(5), "videos/5/a.mp4", int64(10), "video/mp4", int64(1), now, now}}},
		dbtest.Handler{Match: "INSERT INTO problem_videos", Affected: 2},
		dbtest.Handler{Match: "DELETE FROM problem_videos", Affected: 0},
		dbtest.Handler{Match: "FROM problem_videos"},
	)
	repo := NewVideoRepository(fake)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx db.Transaction) error {
		prev, err := repo.GetForUpdate(ctx, tx, 5)
		if err != nil {
			return err
		}
		if prev.ObjectKey != "videos/5/a.mp4" {
			t.Fatalf("prev = %+v", prev)
		}
		return repo.Upsert(ctx, tx, &Video{ProblemID: 5, ObjectKey: "videos/5/b.mp4", SizeBytes: 20})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	upsert := fake.Calls()[1]
	if !strings.Contains(upsert.Query, "ON DUPLICATE KEY UPDATE") || upsert.Args[1] != "videos/5/b.mp4" {
		t.Fatalf("upsert = %+v", upsert)
	}

	if _, err := repo.Get(ctx, nil, 5); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("get err = %v", err)
	}
	if err := repo.Delete(ctx, nil, 5); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("delete err = %v", err)
	}
	if err := repo.Upsert(ctx, nil, &Video{ProblemID: 5}); err == nil {
		t.Fatalf("expected error for missing object key")
	}
}
