//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hugh/dealdesk/internal/auth"
	"github.com/hugh/dealdesk/internal/database"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/pkg/config"
	"github.com/hugh/dealdesk/pkg/util"
	"github.com/joho/godotenv"
)

// Creates (or promotes) the first platform admin.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "dealdesk-seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, util.SystemClock(), logger)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")
	if email == "" {
		email = "admin@example.com"
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if password == "" {
		password = "admin123!pass"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
	})
	if err != nil && !errors.Is(err, auth.ErrUserExists) {
		log.Fatalf("failed to create admin user: %v", err)
	}

	res := db.Model(&models.User{}).Where("email = ?", email).Update("is_admin", true)
	if res.Error != nil {
		log.Fatalf("failed to promote admin user: %v", res.Error)
	}

	if resp == nil {
		fmt.Printf("Existing user promoted to admin: %s\n", email)
		return
	}
	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Token: %s\n", resp.Token)
}
