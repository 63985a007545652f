package main

import (
	"log"
	"os"
	"strings"

	"cwscore/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set. This service requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Permission errors
	// are logged and ignored so a restricted runtime role can still serve.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.Operator{}); err != nil {
			log.Printf("migration warning (operators): %v", err)
		}
		if err := db.AutoMigrate(&models.Member{}); err != nil {
			log.Printf("migration warning (members): %v", err)
		}
		if err := db.AutoMigrate(&models.ProcessedImage{}); err != nil {
			log.Printf("migration warning (processed_images): %v", err)
		}
	}
	seedDB()
}

// seedDB ensures a bootstrap admin operator exists when ADMIN_USER/ADMIN_PASSWORD are set.
// Idempotent: an existing username is left untouched.
func seedDB() {
	username := os.Getenv("ADMIN_USER")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return
	}
	var cnt int64
	db.Model(&models.Operator{}).Where("username = ?", username).Count(&cnt)
	if cnt > 0 {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("seed admin: hash failed: %v", err)
		return
	}
	if err := db.Create(&models.Operator{Username: username, HashedPassword: hashed, Admin: true}).Error; err != nil {
		log.Printf("seed admin: create failed: %v", err)
		return
	}
	log.Printf("seeded admin operator %q", username)
}
