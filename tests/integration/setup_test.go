//go:build integration

package integration

import (
	"fmt"
	"io"
	"log"
	"os"
	"testing"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDB *gorm.DB

var tables = []string{"refund_tasks", "reservations", "facility_days", "facilities"}

func TestMain(m *testing.M) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5434"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "booking_test_db"),
	)

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	dropTables()
	if err := testDB.AutoMigrate(&models.Facility{}, &models.FacilityDay{}, &models.Reservation{}, &models.RefundTask{}); err != nil {
		log.Fatalf("failed to auto-migrate test database: %v", err)
	}

	code := m.Run()

	dropTables()
	os.Exit(code)
}

func dropTables() {
	for _, t := range tables {
		testDB.Exec("DROP TABLE IF EXISTS " + t)
	}
}

func cleanTables() {
	for _, t := range tables {
		testDB.Exec("DELETE FROM " + t)
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
