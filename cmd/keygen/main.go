package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/af-corp/aegis-ids/internal/auth"
	"github.com/af-corp/aegis-ids/internal/config"
)

func main() {
	user := flag.String("user", "", "token subject (required)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	envFile := flag.String("env-file", ".env", "dotenv file holding SECRET_KEY")
	flag.Parse()

	if *user == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -user is required")
		os.Exit(1)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		log.Fatal("SECRET_KEY is not set")
	}

	issuer, err := auth.NewIssuer(secret, *ttl)
	if err != nil {
		log.Fatalf("failed to create issuer: %v", err)
	}
	token, exp, err := issuer.Issue(*user)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Println("=== IDS Access Token ===")
	fmt.Println()
	fmt.Printf("  User:    %s\n", *user)
	fmt.Printf("  Expires: %s\n", exp.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Send it in the x-access-token header:")
	fmt.Printf("  %s\n", token)
	fmt.Println()
	fmt.Println("========================")
}
