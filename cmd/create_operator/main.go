// Command create_operator adds a moderator account directly to the database, for bootstrap
// and recovery when the HTTP register endpoint is not reachable.
package main

import (
	"flag"
	"log"
	"os"

	"cwscore/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	username := flag.String("username", "", "operator username")
	password := flag.String("password", "", "operator password")
	admin := flag.Bool("admin", false, "grant admin")
	flag.Parse()
	if *username == "" || *password == "" {
		log.Fatal("-username and -password are required")
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN must be set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(&models.Operator{}); err != nil {
		log.Printf("migration warning: %v", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}
	op := models.Operator{Username: *username, HashedPassword: hashed, Admin: *admin}
	if err := db.Create(&op).Error; err != nil {
		log.Fatalf("create: %v", err)
	}
	log.Printf("operator %q created (admin=%v)", *username, *admin)
}
