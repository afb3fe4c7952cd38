package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

func folder(typ models.FolderType, owner int64) models.Folder {
	return models.Folder{ID: 1, ContextID: 1, Type: typ, OwnerID: owner}
}

func TestFolderOraclePrivate(t *testing.T) {
	o := NewFolderOracle()
	ctx := context.Background()
	f := folder(models.FolderPrivate, 5)

	assert.NoError(t, o.CheckCreate(ctx, 5, f))
	assert.NoError(t, o.CheckWrite(ctx, 5, f, nil))
	assert.NoError(t, o.CheckDelete(ctx, 5, f, nil))
	assert.NoError(t, o.CheckRead(ctx, 5, f))

	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckCreate(ctx, 6, f)))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckWrite(ctx, 6, f, nil)))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckDelete(ctx, 6, f, nil)))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckRead(ctx, 6, f)))
}

func TestFolderOracleShared(t *testing.T) {
	o := NewFolderOracle()
	ctx := context.Background()
	f := folder(models.FolderShared, 5)

	// shared folders allow delegated writes and reads but never create/delete
	assert.NoError(t, o.CheckWrite(ctx, 6, f, nil))
	assert.NoError(t, o.CheckRead(ctx, 6, f))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckCreate(ctx, 6, f)))
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(o.CheckDelete(ctx, 6, f, nil)))
}

func TestFolderOraclePublic(t *testing.T) {
	o := NewFolderOracle()
	ctx := context.Background()
	f := folder(models.FolderPublic, 5)

	assert.NoError(t, o.CheckCreate(ctx, 6, f))
	assert.NoError(t, o.CheckWrite(ctx, 6, f, nil))
	assert.NoError(t, o.CheckDelete(ctx, 6, f, nil))
	assert.NoError(t, o.CheckRead(ctx, 6, f))
}
