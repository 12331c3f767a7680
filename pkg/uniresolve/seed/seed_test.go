package seed

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/auth"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/database"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

func TestDemo(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)

	created, err := Demo(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, created)

	var uni models.University
	require.NoError(t, db.Where("code = ?", "DEMO").First(&uni).Error)
	assert.True(t, uni.IsActive)

	var admin models.User
	require.NoError(t, db.Where("email = ?", AdminEmail).First(&admin).Error)
	assert.Equal(t, models.RoleSuperAdmin, admin.Role)
	assert.Equal(t, uni.ID, admin.UniversityID)
	assert.True(t, auth.CheckPassword(AdminPassword, admin.PasswordHash))

	var student models.User
	require.NoError(t, db.Where("email = ?", StudentEmail).First(&student).Error)
	assert.Equal(t, "STU001", student.StudentID)
	require.NotNil(t, student.DepartmentID)

	var depts int64
	db.Model(&models.Department{}).Where("university_id = ?", uni.ID).Count(&depts)
	assert.Equal(t, int64(2), depts)

	created, err = Demo(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, created)

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Equal(t, int64(3), users)
}
