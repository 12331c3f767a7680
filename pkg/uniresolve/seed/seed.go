// Package seed creates the demo tenant used for local development.
package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/admin"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/universities"
)

// Demo account credentials. Change them before exposing a seeded database.
const (
	AdminEmail      = "admin@demo.edu"
	AdminPassword   = "admin123456"
	StaffEmail      = "staff@demo.edu"
	StaffPassword   = "staff123456"
	StudentEmail    = "student@demo.edu"
	StudentPassword = "student123"
)

// Demo creates the DEMO university with a super admin, a staff member, a
// student and two departments. It does nothing when any university exists
// and reports whether it created anything.
func Demo(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.University{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count universities: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uni, err := universities.NewService(tx).Create(ctx, universities.CreateInput{
			Name:    "Demo University",
			Code:    "DEMO",
			Domain:  "demo.edu",
			Address: "123 University Ave, Demo City, DC 12345",
			Phone:   "+1-555-0123",
			Email:   "admin@demo.edu",
		})
		if err != nil {
			return fmt.Errorf("create university: %w", err)
		}

		depts := []models.Department{
			{UniversityID: uni.ID, Name: "Computer Science", Code: "CS", Email: "cs@demo.edu"},
			{UniversityID: uni.ID, Name: "Student Services", Code: "SS", Email: "services@demo.edu"},
		}
		if err := tx.Create(&depts).Error; err != nil {
			return fmt.Errorf("create departments: %w", err)
		}

		users := admin.NewService(tx)
		accounts := []admin.CreateUserInput{
			{Email: AdminEmail, Username: "admin", FullName: "System Administrator", Password: AdminPassword,
				Role: models.RoleSuperAdmin},
			{Email: StaffEmail, Username: "staff", FullName: "Demo Staff", Password: StaffPassword,
				Role: models.RoleStaff, DepartmentID: &depts[1].ID, EmployeeID: "EMP001"},
			{Email: StudentEmail, Username: "student", FullName: "Demo Student", Password: StudentPassword,
				Role: models.RoleStudent, DepartmentID: &depts[0].ID, StudentID: "STU001"},
		}
		for _, in := range accounts {
			in.UniversityID = uni.ID
			if _, err := users.CreateUser(ctx, nil, in); err != nil {
				return fmt.Errorf("create %s: %w", in.Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Warn().
		Str("admin", AdminEmail).
		Str("staff", StaffEmail).
		Str("student", StudentEmail).
		Msg("seeded demo university with default passwords")
	return true, nil
}
