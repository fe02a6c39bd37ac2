package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/dbx"
	"github.com/blobvault/blobvault/internal/logging"
	sc "github.com/blobvault/blobvault/internal/server/config"
	"github.com/blobvault/blobvault/internal/server/models"
	"github.com/blobvault/blobvault/internal/server/repositories/folders"
	"github.com/blobvault/blobvault/internal/server/repositories/quotas"
	"github.com/blobvault/blobvault/internal/server/repositories/repomanager"
	"github.com/blobvault/blobvault/internal/server/repositories/uploads"
)

// -------- test fakes --------

type fakeUploadsRepo struct {
	uploads.Repository

	mu sync.Mutex

	created   []*models.Upload
	createErr error

	byKey  map[string]*models.Upload
	getErr error

	commitRows  []*models.Upload
	commitErr   error
	commitKeys  [][]string
	commitCalls int

	markDeletedIDs []string
	markDeletedErr error

	cleanupFailedIDs []string
	cleanupFailedErr error

	deletedIDs []string
	deleteErr  error

	expired      []*models.Upload
	expiredErr   error
	expiredLimit int

	selCommitted []*models.Upload
}

func (f *fakeUploadsRepo) Create(ctx context.Context, u *models.Upload) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUploadsRepo) GetByObjectKey(ctx context.Context, key string) (*models.Upload, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byKey[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUploadsRepo) MarkCommitted(ctx context.Context, keys []string, now time.Time) ([]*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitCalls++
	f.commitKeys = append(f.commitKeys, keys)
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	if f.byKey != nil {
		// match against the seeded rows the way the SQL filter would
		var rows []*models.Upload
		for _, key := range keys {
			u, ok := f.byKey[key]
			if !ok || u.Status != models.StatusPending {
				continue
			}
			if u.ExpiresAt == nil || !u.ExpiresAt.After(now) {
				continue
			}
			rows = append(rows, u)
		}
		return rows, nil
	}
	return f.commitRows, nil
}

func (f *fakeUploadsRepo) MarkDeleted(ctx context.Context, id string, from models.UploadStatus, now time.Time) (bool, error) {
	if f.markDeletedErr != nil {
		return false, f.markDeletedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byKey {
		if u.ID != id {
			continue
		}
		// same predicate the SQL statement applies
		if u.Status != from {
			return false, nil
		}
		u.Status = models.StatusDeleted
		f.markDeletedIDs = append(f.markDeletedIDs, id)
		return true, nil
	}
	f.markDeletedIDs = append(f.markDeletedIDs, id)
	return true, nil
}

func (f *fakeUploadsRepo) MarkCleanupFailed(ctx context.Context, id string) error {
	if f.cleanupFailedErr != nil {
		return f.cleanupFailedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupFailedIDs = append(f.cleanupFailedIDs, id)
	return nil
}

func (f *fakeUploadsRepo) DeleteByID(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeUploadsRepo) SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.Upload, error) {
	f.expiredLimit = limit
	if f.expiredErr != nil {
		return nil, f.expiredErr
	}
	if len(f.expired) > limit {
		return f.expired[:limit], nil
	}
	return f.expired, nil
}

func (f *fakeUploadsRepo) SelectCommitted(ctx context.Context, tenantID *string, ownerID string, limit int) ([]*models.Upload, error) {
	return f.selCommitted, nil
}

// fakeQuotasRepo keeps a real quota row and applies the conditional
// arithmetic atomically, so racing commits exercise the same semantics the
// SQL statement guarantees.
type fakeQuotasRepo struct {
	quotas.Repository

	mu     sync.Mutex
	quota  *models.StorageQuota
	getErr error
	addErr error

	releaseCalls []int64
	releaseErr   error
}

func (f *fakeQuotasRepo) Get(ctx context.Context, tenantID string) (*models.StorageQuota, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quota == nil {
		return nil, common.ErrNotFound
	}
	q := *f.quota
	return &q, nil
}

func (f *fakeQuotasRepo) TryAddUsage(ctx context.Context, tenantID string, delta int64) (bool, error) {
	if f.addErr != nil {
		return false, f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quota == nil {
		return false, nil
	}
	if f.quota.UsedBytes+delta > f.quota.LimitBytes {
		return false, nil
	}
	f.quota.UsedBytes += delta
	return true, nil
}

func (f *fakeQuotasRepo) CreateIfAbsent(ctx context.Context, tenantID string, limitBytes, usedBytes int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quota != nil {
		return false, nil
	}
	f.quota = &models.StorageQuota{TenantID: tenantID, LimitBytes: limitBytes, UsedBytes: usedBytes}
	return true, nil
}

func (f *fakeQuotasRepo) ReleaseUsage(ctx context.Context, tenantID string, delta int64) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls = append(f.releaseCalls, delta)
	if f.quota != nil {
		f.quota.UsedBytes -= delta
		if f.quota.UsedBytes < 0 {
			f.quota.UsedBytes = 0
		}
	}
	return nil
}

type fakeFoldersRepo struct {
	folders.Repository

	byID      map[string]*models.Folder
	created   []*models.Folder
	createErr error
	deletedID []string
	list      []*models.Folder
}

func (f *fakeFoldersRepo) Create(ctx context.Context, folder *models.Folder) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, folder)
	return nil
}

func (f *fakeFoldersRepo) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	folder, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return folder, nil
}

func (f *fakeFoldersRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.Folder, error) {
	return f.list, nil
}

func (f *fakeFoldersRepo) Delete(ctx context.Context, id string) error {
	f.deletedID = append(f.deletedID, id)
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	u *fakeUploadsRepo
	q *fakeQuotasRepo
	f *fakeFoldersRepo
}

func (m *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository { return m.u }
func (m *fakeRepoManager) Quotas(db dbx.DBTX) quotas.Repository   { return m.q }
func (m *fakeRepoManager) Folders(db dbx.DBTX) folders.Repository { return m.f }

// fakeBlobStore scripts presign and delete outcomes per key.
type fakeBlobStore struct {
	mu sync.Mutex

	presignURL string
	presignErr error
	putKeys    []string
	putTypes   []string
	putCache   []string
	putExpires []time.Duration

	getURL string
	getErr error

	deleteErrs map[string]error
	deleted    []string

	deleteDelay time.Duration
	inFlight    int
	maxInFlight int

	// when set, Delete blocks until all expected callers have entered
	deleteBarrier *sync.WaitGroup
}

func (f *fakeBlobStore) PresignPut(ctx context.Context, key, contentType, cacheControl string, expires time.Duration) (string, error) {
	f.mu.Lock()
	f.putKeys = append(f.putKeys, key)
	f.putTypes = append(f.putTypes, contentType)
	f.putCache = append(f.putCache, cacheControl)
	f.putExpires = append(f.putExpires, expires)
	f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	if f.presignURL == "" {
		return "https://signed.example/put", nil
	}
	return f.presignURL, nil
}

func (f *fakeBlobStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	if f.getURL == "" {
		return "https://signed.example/get", nil
	}
	return f.getURL, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.deleteBarrier != nil {
		f.deleteBarrier.Done()
		f.deleteBarrier.Wait()
	}

	if f.deleteDelay > 0 {
		time.Sleep(f.deleteDelay)
	}

	f.mu.Lock()
	f.inFlight--
	err := f.deleteErrs[key]
	if err == nil {
		f.deleted = append(f.deleted, key)
	}
	f.mu.Unlock()
	return err
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.S3Bucket = "uploads"
	cfg.PublicBaseURL = "https://cdn.example.com/"
	return cfg
}

func newTestLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newUploadService(t *testing.T, db *sql.DB, m *fakeRepoManager, store *fakeBlobStore, cfg *sc.Config) *UploadService {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	s := NewUploadService(db, m, store, cfg, newTestLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func strPtr(s string) *string { return &s }
