package database

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer Close(db)

	if !db.Migrator().HasTable(&models.Complaint{}) {
		t.Error("Expected complaints table after migration")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := Connect(config.DBConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestDuplicateKeyIsTranslated(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer Close(db)

	if err := db.Create(&models.University{Name: "Demo", Code: "DEMO", Domain: "demo.edu"}).Error; err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err = db.Create(&models.University{Name: "Demo 2", Code: "DEMO", Domain: "demo2.edu"}).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("Expected gorm.ErrDuplicatedKey, got %v", err)
	}
}
