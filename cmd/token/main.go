// Command token prints a signed bearer token for the library API, for local use and manual testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/library-service/cmd/api/auth"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret, defaults to JWT_SECRET")
	user := fs.String("user", "", "user uuid, a new one is generated when empty")
	staff := fs.Bool("staff", false, "issue an admin token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		return fmt.Errorf("a secret is required, set JWT_SECRET or -secret")
	}

	userID := uuid.New()
	if *user != "" {
		id, err := uuid.Parse(*user)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		userID = id
	}

	token, err := auth.Issue(*secret, userID, *staff, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
