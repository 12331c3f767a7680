package models

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	return db
}

func createUniversity(t *testing.T, db *gorm.DB, code string) University {
	uni := University{Name: code + " University", Code: code, Domain: code + ".edu"}
	if err := db.Create(&uni).Error; err != nil {
		t.Fatalf("Failed to create university: %v", err)
	}
	return uni
}

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t)

	err := AutoMigrate(db)
	if err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}

	// Verify tables exist by checking if we can query them
	tables := []string{"universities", "departments", "users", "complaints", "complaint_assignments", "messages", "activities", "notifications", "attachments"}
	for _, table := range tables {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestUserModel(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)
	uni := createUniversity(t, db, "DEMO")

	user := User{
		Email:        "test@demo.edu",
		Username:     "tester",
		FullName:     "Test User",
		PasswordHash: "hashed_password",
		UniversityID: uni.ID,
	}

	result := db.Create(&user)
	if result.Error != nil {
		t.Fatalf("Failed to create user: %v", result.Error)
	}

	if user.ID == 0 {
		t.Error("Expected user ID to be set after create")
	}

	var loaded User
	db.First(&loaded, user.ID)
	if loaded.Role != RoleStudent {
		t.Errorf("Expected default role student, got %s", loaded.Role)
	}
	if !loaded.IsActive {
		t.Error("Expected new user to be active")
	}

	// Test unique email constraint
	user2 := User{
		Email:        "test@demo.edu",
		Username:     "other",
		FullName:     "Another User",
		UniversityID: uni.ID,
	}
	if err := db.Create(&user2).Error; err == nil {
		t.Error("Expected error when creating user with duplicate email")
	}

	// Test unique username constraint
	user3 := User{
		Email:        "other@demo.edu",
		Username:     "tester",
		FullName:     "Another User",
		UniversityID: uni.ID,
	}
	if err := db.Create(&user3).Error; err == nil {
		t.Error("Expected error when creating user with duplicate username")
	}
}

func TestDepartmentCodeUniquePerUniversity(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)
	a := createUniversity(t, db, "AAA")
	b := createUniversity(t, db, "BBB")

	if err := db.Create(&Department{UniversityID: a.ID, Name: "Computer Science", Code: "CS"}).Error; err != nil {
		t.Fatalf("Failed to create department: %v", err)
	}
	if err := db.Create(&Department{UniversityID: b.ID, Name: "Computer Science", Code: "CS"}).Error; err != nil {
		t.Errorf("Same code in another university should be allowed: %v", err)
	}
	if err := db.Create(&Department{UniversityID: a.ID, Name: "Comp Sci", Code: "CS"}).Error; err == nil {
		t.Error("Expected error for duplicate department code within a university")
	}
}

func TestComplaintWitnessesAndAssignments(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)
	uni := createUniversity(t, db, "DEMO")

	student := User{Email: "s@demo.edu", Username: "s", FullName: "S", UniversityID: uni.ID}
	staff := User{Email: "t@demo.edu", Username: "t", FullName: "T", Role: RoleStaff, UniversityID: uni.ID}
	db.Create(&student)
	db.Create(&staff)

	complaint := Complaint{
		Title:         "Broken heater",
		Description:   "The heater in room 101 has been broken for weeks",
		Category:      CategoryFacilities,
		Priority:      PriorityHigh,
		ComplainantID: student.ID,
		UniversityID:  uni.ID,
		Witnesses:     []string{"Alice", "Bob"},
		Version:       1,
	}
	if err := db.Create(&complaint).Error; err != nil {
		t.Fatalf("Failed to create complaint: %v", err)
	}

	if err := db.Create(&ComplaintAssignment{ComplaintID: complaint.ID, UserID: staff.ID}).Error; err != nil {
		t.Fatalf("Failed to assign: %v", err)
	}
	if err := db.Create(&ComplaintAssignment{ComplaintID: complaint.ID, UserID: staff.ID}).Error; err == nil {
		t.Error("Expected error for duplicate assignment")
	}

	var loaded Complaint
	if err := db.Preload("Assignments").First(&loaded, complaint.ID).Error; err != nil {
		t.Fatalf("Failed to load complaint: %v", err)
	}

	if loaded.Status != StatusSubmitted {
		t.Errorf("Expected default status submitted, got %s", loaded.Status)
	}
	if len(loaded.Witnesses) != 2 || loaded.Witnesses[1] != "Bob" {
		t.Errorf("Expected witnesses to round-trip, got %v", loaded.Witnesses)
	}
	if !loaded.IsAssigned(staff.ID) {
		t.Error("Expected staff to be assigned")
	}
	if loaded.IsAssigned(student.ID) {
		t.Error("Student should not be assigned")
	}
	if ids := loaded.AssignedUserIDs(); len(ids) != 1 || ids[0] != staff.ID {
		t.Errorf("Expected assigned ids [%d], got %v", staff.ID, ids)
	}
}

func TestEnumHelpers(t *testing.T) {
	if !StatusResolved.IsTerminal() || !StatusClosed.IsTerminal() {
		t.Error("Expected resolved and closed to be terminal")
	}
	if StatusEscalated.IsTerminal() || StatusEscalated.IsPending() {
		t.Error("Escalated is neither terminal nor pending")
	}
	if !StatusUnderReview.IsPending() {
		t.Error("Expected under_review to be pending")
	}
	if ComplaintStatus("reopened").Valid() {
		t.Error("Unknown status should be invalid")
	}
	if len(AllCategories()) != 11 {
		t.Errorf("Expected 11 categories, got %d", len(AllCategories()))
	}
	if !Category("food_services").Valid() || Category("parking").Valid() {
		t.Error("Category validation mismatch")
	}
	if !Priority("urgent").Valid() || Priority("critical").Valid() {
		t.Error("Priority validation mismatch")
	}
	if !RoleSuperAdmin.Valid() || Role("owner").Valid() {
		t.Error("Role validation mismatch")
	}
}
