package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/dbx"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/records"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/repomanager"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/sessions"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/users"
)

// -------- test fakes --------

// fakeRecordsRepo keeps records in memory and mirrors the repository
// contract, including (updated, id) ordering and user scoping, so the engine
// semantics can be exercised without a database.
type fakeRecordsRepo struct {
	recs    map[string]map[string]*models.Record // userID -> id -> record
	domains map[string][][]byte                  // userID+"/"+id -> blobs

	// missGetOnce makes the next GetForUpdate for the id report an absent
	// row, the view a transaction has before a concurrent insert of that id
	// commits.
	missGetOnce map[string]bool

	upsertErr error
	updateErr error
}

func newFakeRecordsRepo() *fakeRecordsRepo {
	return &fakeRecordsRepo{
		recs:        map[string]map[string]*models.Record{},
		domains:     map[string][][]byte{},
		missGetOnce: map[string]bool{},
	}
}

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	if r.DeletedAt != nil {
		ts := *r.DeletedAt
		c.DeletedAt = &ts
	}
	return &c
}

func (f *fakeRecordsRepo) key(userID, id string) string { return userID + "/" + id }

func (f *fakeRecordsRepo) GetForUpdate(ctx context.Context, userID, id string) (*models.Record, error) {
	if f.missGetOnce[f.key(userID, id)] {
		delete(f.missGetOnce, f.key(userID, id))
		return nil, common.ErrorNotFound
	}
	if rec, ok := f.recs[userID][id]; ok {
		return cloneRecord(rec), nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRecordsRepo) Upsert(ctx context.Context, rec *models.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.recs[rec.UserID][rec.ID]; ok && existing.Updated.After(rec.Updated) {
		return common.ErrStaleWrite
	}
	if f.recs[rec.UserID] == nil {
		f.recs[rec.UserID] = map[string]*models.Record{}
	}
	stored := cloneRecord(rec)
	stored.DeletedAt = nil
	f.recs[rec.UserID][rec.ID] = stored
	return nil
}

func (f *fakeRecordsRepo) Update(ctx context.Context, rec *models.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.recs[rec.UserID][rec.ID]
	if !ok {
		return common.ErrorNotFound
	}
	existing.UsernameData = rec.UsernameData
	existing.PasswordData = rec.PasswordData
	existing.Notes = rec.Notes
	existing.Updated = rec.Updated
	existing.DeletedAt = nil
	return nil
}

func (f *fakeRecordsRepo) SoftDelete(ctx context.Context, userID, id string, ts time.Time) error {
	existing, ok := f.recs[userID][id]
	if !ok {
		return common.ErrorNotFound
	}
	t := ts
	existing.DeletedAt = &t
	existing.Updated = ts
	return nil
}

func (f *fakeRecordsRepo) ReplaceDomains(ctx context.Context, userID, recordID string, domains [][]byte) error {
	f.domains[f.key(userID, recordID)] = append([][]byte(nil), domains...)
	return nil
}

func (f *fakeRecordsRepo) ListDomains(ctx context.Context, userID, recordID string) ([][]byte, error) {
	return f.domains[f.key(userID, recordID)], nil
}

func (f *fakeRecordsRepo) ListChanges(ctx context.Context, userID string, since *time.Time, cursor *models.Cursor, limit int) ([]*models.Record, error) {
	var out []*models.Record
	for _, rec := range f.recs[userID] {
		if since != nil && !rec.Updated.After(*since) {
			continue
		}
		if cursor != nil {
			after := rec.Updated.After(cursor.Updated) ||
				(rec.Updated.Equal(cursor.Updated) && rec.ID > cursor.ID)
			if !after {
				continue
			}
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.Before(out[j].Updated)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	r *fakeRecordsRepo
}

func (m *fakeRepoManager) Records(db dbx.DBTX) records.Repository   { return m.r }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository       { return nil }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository { return nil }

// -------- helpers --------

func newSyncFixture(t *testing.T) (*SyncService, *fakeRecordsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := newFakeRecordsRepo()
	return NewSyncService(db, &fakeRepoManager{r: repo}), repo, mock
}

func expectTxCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedRecord(repo *fakeRecordsRepo, userID, id string, updated time.Time) *models.Record {
	rec := &models.Record{
		ID:           id,
		UserID:       userID,
		UsernameData: []byte("u-" + id),
		PasswordData: []byte("p-" + id),
		Notes:        []byte("n-" + id),
		CreatedAt:    updated,
		Updated:      updated,
	}
	if repo.recs[userID] == nil {
		repo.recs[userID] = map[string]*models.Record{}
	}
	repo.recs[userID][id] = rec
	return rec
}

// -------- change feed --------

func TestGetChanges_EmptyVault(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	recs, next, hasMore, err := svc.GetChanges(context.Background(), "u1", nil, "", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, next)
	assert.False(t, hasMore)
}

func TestGetChanges_InvalidCursor(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	_, _, _, err := svc.GetChanges(context.Background(), "u1", nil, "garbage", 10)
	assert.ErrorIs(t, err, common.ErrInvalidCursor)

	_, _, _, err = svc.GetChanges(context.Background(), "u1", nil, "2024-13-99T99:99:99Z_id", 10)
	assert.ErrorIs(t, err, common.ErrInvalidCursor)
}

// Paging through the whole feed must visit every record exactly once in
// (updated, id) order, even when many records share one updated value.
func TestGetChanges_PaginationNoSkipsNoDuplicates(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)

	// 25 records in 5 groups sharing the same timestamp.
	for i := 0; i < 25; i++ {
		ts := baseTime.Add(time.Duration(i/5) * time.Minute)
		seedRecord(repo, "u1", fmt.Sprintf("rec-%02d", i), ts)
	}

	seen := map[string]int{}
	var ordered []*models.Record
	cursor := ""
	pages := 0
	for {
		recs, next, hasMore, err := svc.GetChanges(context.Background(), "u1", nil, cursor, 7)
		require.NoError(t, err)
		for _, r := range recs {
			seen[r.ID]++
			ordered = append(ordered, r)
		}
		pages++
		if !hasMore {
			assert.Empty(t, next)
			break
		}
		require.NotEmpty(t, next)
		cursor = next
	}

	assert.Equal(t, 4, pages)
	assert.Len(t, seen, 25)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "record %s served %d times", id, n)
	}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		less := prev.Updated.Before(cur.Updated) ||
			(prev.Updated.Equal(cur.Updated) && prev.ID < cur.ID)
		assert.Truef(t, less, "order violated at %d: %s then %s", i, prev.ID, cur.ID)
	}
}

func TestGetChanges_NextCursorFromLastIncludedRow(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)

	for i := 0; i < 5; i++ {
		seedRecord(repo, "u1", fmt.Sprintf("rec-%d", i), baseTime.Add(time.Duration(i)*time.Second))
	}

	recs, next, hasMore, err := svc.GetChanges(context.Background(), "u1", nil, "", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, hasMore)

	last := recs[2]
	assert.Equal(t, encodeCursor(models.Cursor{Updated: last.Updated, ID: last.ID}), next)
}

func TestGetChanges_SinceExcludesOlderIncludesTombstones(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)

	seedRecord(repo, "u1", "old", baseTime.Add(-time.Hour))
	seedRecord(repo, "u1", "victim", baseTime)

	// Soft-delete victim at baseTime+3s.
	expectTxCommit(mock)
	delTS := baseTime.Add(3 * time.Second)
	_, err := svc.PushChanges(context.Background(), "u1", nil, nil,
		[]*RecordDelete{{ID: "victim", Updated: delTS}})
	require.NoError(t, err)

	// since just before the delete: the tombstone is served.
	since := delTS.Add(-time.Second)
	recs, _, _, err := svc.GetChanges(context.Background(), "u1", &since, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "victim", recs[0].ID)
	require.NotNil(t, recs[0].DeletedAt)
	assert.True(t, recs[0].DeletedAt.Equal(delTS))

	// since just after the delete: nothing.
	since = delTS.Add(time.Second)
	recs, _, _, err = svc.GetChanges(context.Background(), "u1", &since, "", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetChanges_ClampsLimit(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)

	for i := 0; i < MaxPageSize+5; i++ {
		seedRecord(repo, "u1", fmt.Sprintf("rec-%04d", i), baseTime.Add(time.Duration(i)*time.Second))
	}

	recs, _, hasMore, err := svc.GetChanges(context.Background(), "u1", nil, "", MaxPageSize+100)
	require.NoError(t, err)
	assert.Len(t, recs, MaxPageSize)
	assert.True(t, hasMore)
}

func TestGetChanges_HydratesDomains(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)

	seedRecord(repo, "u1", "rec", baseTime)
	repo.domains[repo.key("u1", "rec")] = [][]byte{[]byte("d1"), []byte("d2")}

	recs, _, _, err := svc.GetChanges(context.Background(), "u1", nil, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, [][]byte{[]byte("d1"), []byte("d2")}, recs[0].Domains)
}

func TestGetChanges_UserIsolation(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)

	seedRecord(repo, "userA", "a-rec", baseTime)
	seedRecord(repo, "userB", "b-rec", baseTime)

	recs, _, _, err := svc.GetChanges(context.Background(), "userA", nil, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a-rec", recs[0].ID)
}

// -------- push reconciler --------

func TestPushChanges_CreateNew(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{
			ID:           "rec-1",
			UsernameData: []byte("user"),
			PasswordData: []byte("pass"),
			Notes:        []byte("notes"),
			Domains:      [][]byte{[]byte("example.com")},
			Updated:      baseTime,
		}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Conflicts)

	stored := repo.recs["u1"]["rec-1"]
	require.NotNil(t, stored)
	assert.True(t, stored.CreatedAt.Equal(baseTime))
	assert.True(t, stored.Updated.Equal(baseTime))
	assert.Nil(t, stored.DeletedAt)
	assert.Equal(t, [][]byte{[]byte("example.com")}, repo.domains[repo.key("u1", "rec-1")])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPushChanges_CreateAgainstNewerServer(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime.Add(time.Hour))
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{ID: "rec-1", Updated: baseTime}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "rec-1", c.ID)
	assert.Equal(t, common.ReasonServerNewer, c.Reason)
	assert.True(t, c.ClientUpdated.Equal(baseTime))
	assert.True(t, c.ServerUpdated.Equal(baseTime.Add(time.Hour)))

	// Server row untouched.
	assert.Equal(t, []byte("u-rec-1"), repo.recs["u1"]["rec-1"].UsernameData)
}

func TestPushChanges_CreateOverwritePreservesCreatedAt(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	orig := seedRecord(repo, "u1", "rec-1", baseTime)
	repo.domains[repo.key("u1", "rec-1")] = [][]byte{[]byte("stale.example")}
	expectTxCommit(mock)

	newTS := baseTime.Add(time.Minute)
	res, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{
			ID:           "rec-1",
			UsernameData: []byte("fresh"),
			Domains:      [][]byte{[]byte("new.example")},
			Updated:      newTS,
		}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	stored := repo.recs["u1"]["rec-1"]
	assert.True(t, stored.CreatedAt.Equal(orig.CreatedAt), "created_at must survive overwrite")
	assert.True(t, stored.Updated.Equal(newTS))
	assert.Equal(t, []byte("fresh"), stored.UsernameData)
	assert.Equal(t, [][]byte{[]byte("new.example")}, repo.domains[repo.key("u1", "rec-1")])
}

// Two first creates of one id can both pass the absent-row check, since
// locking an absent row locks nothing. The write guard must then stop the
// older timestamp from overwriting the newer committed row.
func TestPushChanges_CreateRaceKeepsNewerRow(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)

	// The concurrent winner: committed with T2, invisible to this
	// transaction's first read.
	winner := seedRecord(repo, "u1", "rec-1", baseTime.Add(time.Hour))
	repo.missGetOnce[repo.key("u1", "rec-1")] = true
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{ID: "rec-1", UsernameData: []byte("loser"), Updated: baseTime}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, common.ReasonServerNewer, c.Reason)
	assert.True(t, c.ClientUpdated.Equal(baseTime))
	assert.True(t, c.ServerUpdated.Equal(winner.Updated))

	// The newer row survives untouched; updated never moved backward.
	stored := repo.recs["u1"]["rec-1"]
	assert.Equal(t, []byte("u-rec-1"), stored.UsernameData)
	assert.True(t, stored.Updated.Equal(winner.Updated))
	assert.True(t, stored.CreatedAt.Equal(winner.CreatedAt))
}

func TestPushChanges_CreateIdempotent(t *testing.T) {
	svc, _, mock := newSyncFixture(t)

	item := &RecordUpsert{ID: "rec-1", UsernameData: []byte("u"), Updated: baseTime}

	expectTxCommit(mock)
	res, err := svc.PushChanges(context.Background(), "u1", []*RecordUpsert{item}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	// Same payload again: equal timestamps, payload still wins, no error.
	expectTxCommit(mock)
	res, err = svc.PushChanges(context.Background(), "u1", []*RecordUpsert{item}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Conflicts)
}

func TestPushChanges_UpdateNotFound(t *testing.T) {
	svc, _, mock := newSyncFixture(t)
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1", nil,
		[]*RecordUpsert{{ID: "ghost", Updated: baseTime}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, common.ReasonNotFound, c.Reason)
	assert.True(t, c.ServerUpdated.IsZero(), "server timestamp sentinel must be the zero time")
}

func TestPushChanges_UpdateAgainstNewerServer(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime.Add(time.Hour))
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1", nil,
		[]*RecordUpsert{{ID: "rec-1", UsernameData: []byte("try"), Updated: baseTime}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, common.ReasonServerNewer, res.Conflicts[0].Reason)
	assert.Equal(t, []byte("u-rec-1"), repo.recs["u1"]["rec-1"].UsernameData, "rejected update must not mutate state")
}

func TestPushChanges_UpdateEqualTimestampWins(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime)
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1", nil,
		[]*RecordUpsert{{ID: "rec-1", UsernameData: []byte("tied"), Updated: baseTime}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, []byte("tied"), repo.recs["u1"]["rec-1"].UsernameData)
}

func TestPushChanges_UpdateUndeletes(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime)

	expectTxCommit(mock)
	_, err := svc.PushChanges(context.Background(), "u1", nil, nil,
		[]*RecordDelete{{ID: "rec-1", Updated: baseTime.Add(time.Minute)}})
	require.NoError(t, err)
	require.NotNil(t, repo.recs["u1"]["rec-1"].DeletedAt)

	expectTxCommit(mock)
	res, err := svc.PushChanges(context.Background(), "u1", nil,
		[]*RecordUpsert{{ID: "rec-1", UsernameData: []byte("revived"), Updated: baseTime.Add(2 * time.Minute)}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	stored := repo.recs["u1"]["rec-1"]
	assert.Nil(t, stored.DeletedAt, "an accepted update always undeletes")
	assert.Equal(t, []byte("revived"), stored.UsernameData)
}

func TestPushChanges_DeleteAbsentIsNoOp(t *testing.T) {
	svc, _, mock := newSyncFixture(t)
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1", nil, nil,
		[]*RecordDelete{{ID: "never-existed", Updated: baseTime}})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	assert.Empty(t, res.Conflicts)
}

func TestPushChanges_DeleteAgainstNewerServer(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime.Add(time.Hour))
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "u1", nil, nil,
		[]*RecordDelete{{ID: "rec-1", Updated: baseTime}})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, common.ReasonServerNewer, res.Conflicts[0].Reason)
	assert.Nil(t, repo.recs["u1"]["rec-1"].DeletedAt)
}

func TestPushChanges_DeleteApplies(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "rec-1", baseTime)
	expectTxCommit(mock)

	delTS := baseTime.Add(time.Minute)
	res, err := svc.PushChanges(context.Background(), "u1", nil, nil,
		[]*RecordDelete{{ID: "rec-1", Updated: delTS}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	stored := repo.recs["u1"]["rec-1"]
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, stored.DeletedAt.Equal(delTS))
	assert.True(t, stored.Updated.Equal(delTS))
	// Fields untouched by a delete.
	assert.Equal(t, []byte("u-rec-1"), stored.UsernameData)
}

func TestPushChanges_CrossUserUpdateLooksLikeNotFound(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "userB", "b-rec", baseTime)
	expectTxCommit(mock)

	res, err := svc.PushChanges(context.Background(), "userA", nil,
		[]*RecordUpsert{{ID: "b-rec", UsernameData: []byte("steal"), Updated: baseTime.Add(time.Hour)}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, common.ReasonNotFound, res.Conflicts[0].Reason)
	assert.Equal(t, []byte("u-b-rec"), repo.recs["userB"]["b-rec"].UsernameData)
}

func TestPushChanges_MixedBatch(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	seedRecord(repo, "u1", "upd-ok", baseTime)
	seedRecord(repo, "u1", "upd-stale", baseTime.Add(time.Hour))
	seedRecord(repo, "u1", "del-ok", baseTime)
	expectTxCommit(mock)

	ts := baseTime.Add(time.Minute)
	res, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{ID: "new-rec", Updated: ts}},
		[]*RecordUpsert{
			{ID: "upd-ok", Updated: ts},
			{ID: "upd-stale", Updated: ts},
			{ID: "upd-missing", Updated: ts},
		},
		[]*RecordDelete{
			{ID: "del-ok", Updated: ts},
			{ID: "del-missing", Updated: ts},
		})
	require.NoError(t, err)

	// Applied: create new-rec, update upd-ok, delete del-ok.
	assert.Equal(t, 3, res.Applied)
	require.Len(t, res.Conflicts, 2)

	reasons := map[string]string{}
	for _, c := range res.Conflicts {
		reasons[c.ID] = c.Reason
	}
	assert.Equal(t, common.ReasonServerNewer, reasons["upd-stale"])
	assert.Equal(t, common.ReasonNotFound, reasons["upd-missing"])
	require.NotNil(t, repo.recs["u1"]["del-ok"].DeletedAt)
}

func TestPushChanges_StorageErrorRollsBack(t *testing.T) {
	svc, repo, mock := newSyncFixture(t)
	repo.upsertErr = errors.New("db is down")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.PushChanges(context.Background(), "u1",
		[]*RecordUpsert{{ID: "rec-1", Updated: baseTime}}, nil, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
