package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/server/models"
)

func pendingUpload(key, tenant string, size int64) *models.Upload {
	exp := testNow.Add(5 * time.Minute)
	return &models.Upload{
		ID:        "id-" + key,
		ObjectKey: key,
		Status:    models.StatusPending,
		SizeBytes: size,
		TenantID:  strPtr(tenant),
		OwnerID:   "u1",
		ExpiresAt: &exp,
	}
}

func TestCommitUploads_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t1/private/a.pdf": pendingUpload("tenants/t1/private/a.pdf", "t1", 100),
		"tenants/t1/private/b.pdf": pendingUpload("tenants/t1/private/b.pdf", "t1", 200),
	}}
	q := &fakeQuotasRepo{quota: &models.StorageQuota{TenantID: "t1", LimitBytes: 1000, UsedBytes: 0}}
	m := &fakeRepoManager{u: u, q: q}
	svc := newUploadService(t, db, m, &fakeBlobStore{}, nil)

	committed, err := svc.CommitUploads(context.Background(), []string{
		"tenants/t1/private/a.pdf", "tenants/t1/private/b.pdf",
	})
	require.NoError(t, err)
	require.Len(t, committed, 2)
	require.Equal(t, int64(300), q.quota.UsedBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUploads_NormalizesAndDeduplicatesKeys(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t1/private/a.pdf": pendingUpload("tenants/t1/private/a.pdf", "t1", 100),
	}}
	q := &fakeQuotasRepo{quota: &models.StorageQuota{TenantID: "t1", LimitBytes: 1000}}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, nil)

	committed, err := svc.CommitUploads(context.Background(), []string{
		"http://127.0.0.1:9000/uploads/tenants/t1/private/a.pdf",
		"tenants/t1/private/a.pdf",
		"  tenants/t1/private/a.pdf  ",
		"",
	})
	require.NoError(t, err)
	require.Len(t, committed, 1)
	require.Equal(t, [][]string{{"tenants/t1/private/a.pdf"}}, u.commitKeys)
	require.Equal(t, int64(100), q.quota.UsedBytes, "dedup means the size is charged once")
}

func TestCommitUploads_NoMatchingReservations(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{}}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: &fakeQuotasRepo{}}, &fakeBlobStore{}, nil)

	_, err := svc.CommitUploads(context.Background(), []string{"tenants/t1/private/gone.pdf"})
	require.ErrorIs(t, err, common.ErrNothingToCommit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUploads_EmptyKeyList(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	svc := newUploadService(t, db, &fakeRepoManager{u: &fakeUploadsRepo{}, q: &fakeQuotasRepo{}}, &fakeBlobStore{}, nil)

	_, err := svc.CommitUploads(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrNothingToCommit)

	_, err = svc.CommitUploads(context.Background(), []string{"", "   "})
	require.ErrorIs(t, err, common.ErrNothingToCommit)
}

func TestCommitUploads_ExpiredReservationNotMatched(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	stale := pendingUpload("tenants/t1/private/late.pdf", "t1", 100)
	past := testNow.Add(-time.Minute)
	stale.ExpiresAt = &past

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{stale.ObjectKey: stale}}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: &fakeQuotasRepo{}}, &fakeBlobStore{}, nil)

	_, err := svc.CommitUploads(context.Background(), []string{stale.ObjectKey})
	require.ErrorIs(t, err, common.ErrNothingToCommit)
}

func TestCommitUploads_QuotaRejectionRollsBackWholeBatch(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t1/private/a.pdf": pendingUpload("tenants/t1/private/a.pdf", "t1", 60),
	}}
	q := &fakeQuotasRepo{quota: &models.StorageQuota{TenantID: "t1", LimitBytes: 1000, UsedBytes: 950}}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, nil)

	_, err := svc.CommitUploads(context.Background(), []string{"tenants/t1/private/a.pdf"})

	var quotaErr *common.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, "t1", quotaErr.TenantID)
	require.Equal(t, int64(950), quotaErr.UsedBytes)
	require.Equal(t, int64(1000), quotaErr.LimitBytes)
	require.Equal(t, int64(60), quotaErr.RequestedBytes)
	require.Equal(t, int64(950), q.quota.UsedBytes, "usage must be unchanged")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUploads_BootstrapsQuotaRowOnFirstCommit(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t9/private/a.pdf": pendingUpload("tenants/t9/private/a.pdf", "t9", 400),
	}}
	q := &fakeQuotasRepo{}
	cfg := testConfig()
	cfg.DefaultQuotaBytes = 1000
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, cfg)

	committed, err := svc.CommitUploads(context.Background(), []string{"tenants/t9/private/a.pdf"})
	require.NoError(t, err)
	require.Len(t, committed, 1)
	require.NotNil(t, q.quota)
	require.Equal(t, int64(1000), q.quota.LimitBytes)
	require.Equal(t, int64(400), q.quota.UsedBytes)
}

func TestCommitUploads_BootstrapOverDefaultRejected(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t9/private/huge.bin": pendingUpload("tenants/t9/private/huge.bin", "t9", 2000),
	}}
	q := &fakeQuotasRepo{}
	cfg := testConfig()
	cfg.DefaultQuotaBytes = 1000
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, cfg)

	_, err := svc.CommitUploads(context.Background(), []string{"tenants/t9/private/huge.bin"})

	var quotaErr *common.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, int64(0), quotaErr.UsedBytes)
	require.Equal(t, int64(1000), quotaErr.LimitBytes)
	require.Nil(t, q.quota, "no quota row may be created for a rejected bootstrap")
}

func TestCommitUploads_PersonalUploadsBypassQuota(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	exp := testNow.Add(5 * time.Minute)
	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"users/u1/private/a.pdf": {
			ID: "r1", ObjectKey: "users/u1/private/a.pdf", Status: models.StatusPending,
			SizeBytes: 100, OwnerID: "u1", ExpiresAt: &exp,
		},
	}}
	q := &fakeQuotasRepo{addErr: common.ErrInternal}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, nil)

	committed, err := svc.CommitUploads(context.Background(), []string{"users/u1/private/a.pdf"})
	require.NoError(t, err, "tenantless uploads must never touch the quota repo")
	require.Len(t, committed, 1)
}

// Two commits race for the last 50 bytes of headroom. The conditional
// increment guarantees exactly one wins, never both.
func TestCommitUploads_ConcurrentCommitsNeverOversubscribe(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectRollback()

	u := &fakeUploadsRepo{byKey: map[string]*models.Upload{
		"tenants/t1/private/a.pdf": pendingUpload("tenants/t1/private/a.pdf", "t1", 40),
		"tenants/t1/private/b.pdf": pendingUpload("tenants/t1/private/b.pdf", "t1", 40),
	}}
	q := &fakeQuotasRepo{quota: &models.StorageQuota{TenantID: "t1", LimitBytes: 1000, UsedBytes: 950}}
	svc := newUploadService(t, db, &fakeRepoManager{u: u, q: q}, &fakeBlobStore{}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{"tenants/t1/private/a.pdf", "tenants/t1/private/b.pdf"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CommitUploads(context.Background(), []string{key})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var quotaErr *common.QuotaExceededError
			require.ErrorAs(t, err, &quotaErr)
		}
	}
	require.Equal(t, 1, succeeded, "exactly one of the racing commits may win")
	require.Equal(t, int64(990), q.quota.UsedBytes)
}
