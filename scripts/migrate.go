package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"evhelper/internal/config"
	"evhelper/internal/services"
	"evhelper/pkg/database"
	"evhelper/pkg/logger"

	"github.com/joho/godotenv"
)

// Bootstraps the database: connects, creates all collection indexes
// (including the chat TTL index), and optionally seeds demo accounts for
// local development.
func main() {
	seedDemo := flag.Bool("seed-demo", false, "create demo users and a sample open request")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger.Init()
	cfg := config.Load()

	if err := database.InitMongoDB(cfg.Database.MongoDB); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer database.Disconnect()

	log.Println("Indexes ensured")

	if *seedDemo {
		if err := seed(cfg); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Demo data seeded")
	}
}

func seed(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.GetDatabase()
	users := services.NewUserService(db)
	requests := services.NewRequestService(db)

	requester, err := users.CreateUser(ctx, "Demo Requester", "requester@demo.local", "demo-password", "Berlin", "+49 170 1112233", cfg.Charging.StartingBalance)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			log.Println("Demo data already present, skipping")
			return nil
		}
		return err
	}

	if _, err := users.CreateUser(ctx, "Demo Helper", "helper@demo.local", "demo-password", "Berlin", "+49 170 4455667", cfg.Charging.StartingBalance); err != nil {
		return err
	}

	_, err = requests.Create(ctx, requester.ID, "Berlin", "Parking garage at Alexanderplatz, level 2", "+49 170 1112233", cfg.Charging.DefaultTokenCost)
	return err
}
