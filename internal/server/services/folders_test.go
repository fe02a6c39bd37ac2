package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobvault/blobvault/internal/common"
	"github.com/blobvault/blobvault/internal/server/models"
)

func TestCreateFolder(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	f := &fakeFoldersRepo{byID: map[string]*models.Folder{
		"p1": {ID: "p1", Name: "docs", TenantID: "t1"},
		"p2": {ID: "p2", Name: "other", TenantID: "t2"},
	}}
	m := &fakeRepoManager{f: f}
	svc := NewFolderService(db, m, newTestLogger())

	caller := Principal{UserID: "u1", TenantID: strPtr("t1")}

	folder, err := svc.CreateFolder(context.Background(), caller, "  reports  ", nil)
	require.NoError(t, err)
	require.Equal(t, "reports", folder.Name)
	require.Equal(t, "t1", folder.TenantID)
	require.NotEmpty(t, folder.ID)

	// nested under an own-tenant parent
	parentID := "p1"
	folder, err = svc.CreateFolder(context.Background(), caller, "q3", &parentID)
	require.NoError(t, err)
	require.Equal(t, &parentID, folder.ParentID)

	// no active tenant
	_, err = svc.CreateFolder(context.Background(), Principal{UserID: "u1"}, "x", nil)
	require.ErrorIs(t, err, common.ErrForbidden)

	// empty and oversized names
	_, err = svc.CreateFolder(context.Background(), caller, "   ", nil)
	var validationErr *common.ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateFolder(context.Background(), caller, strings.Repeat("a", 121), nil)
	require.ErrorAs(t, err, &validationErr)

	// unknown parent
	missing := "nope"
	_, err = svc.CreateFolder(context.Background(), caller, "x", &missing)
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "parent_id", validationErr.Field)

	// parent owned by another tenant
	foreign := "p2"
	_, err = svc.CreateFolder(context.Background(), caller, "x", &foreign)
	require.ErrorIs(t, err, common.ErrForbidden)
}

func TestListFolders(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	f := &fakeFoldersRepo{list: []*models.Folder{{ID: "f1", Name: "docs", TenantID: "t1"}}}
	svc := NewFolderService(db, &fakeRepoManager{f: f}, newTestLogger())

	result, err := svc.ListFolders(context.Background(), Principal{UserID: "u1", TenantID: strPtr("t1")})
	require.NoError(t, err)
	require.Len(t, result, 1)

	_, err = svc.ListFolders(context.Background(), Principal{UserID: "u1"})
	require.ErrorIs(t, err, common.ErrForbidden)
}

func TestDeleteFolder(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	f := &fakeFoldersRepo{byID: map[string]*models.Folder{
		"f1": {ID: "f1", Name: "docs", TenantID: "t1"},
	}}
	svc := NewFolderService(db, &fakeRepoManager{f: f}, newTestLogger())

	err := svc.DeleteFolder(context.Background(), Principal{UserID: "u1", TenantID: strPtr("t1")}, "f1")
	require.NoError(t, err)
	require.Equal(t, []string{"f1"}, f.deletedID)

	err = svc.DeleteFolder(context.Background(), Principal{UserID: "u1", TenantID: strPtr("t2")}, "f1")
	require.ErrorIs(t, err, common.ErrForbidden)

	err = svc.DeleteFolder(context.Background(), Principal{UserID: "u1", TenantID: strPtr("t1")}, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}
