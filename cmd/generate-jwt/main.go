package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/utils"
)

// Issues a session or admin token with the configured secrets, for manual API testing.
func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	wallet := flag.String("wallet", "", "wallet address to issue a session token for")
	admin := flag.String("admin", "", "admin username to issue an admin token for")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	var token string
	var expires time.Time
	switch {
	case *wallet != "":
		if cfg.Auth.JWTSecret == "" {
			fmt.Println("❌ auth.jwtSecret (JWT_SECRET) is not set")
			os.Exit(1)
		}
		address, err := utils.NormalizeWalletAddress(*wallet)
		if err != nil {
			fmt.Printf("❌ invalid wallet: %v\n", err)
			os.Exit(1)
		}
		issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.SessionTTL())
		token, expires, err = issuer.IssueSession(address)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	case *admin != "":
		if cfg.Admin.JWTSecret == "" {
			fmt.Println("❌ admin.jwtSecret (ADMIN_JWT_SECRET) is not set")
			os.Exit(1)
		}
		ttl := time.Duration(cfg.Admin.TokenTTLMinutes) * time.Minute
		issuer := auth.NewTokenIssuer(cfg.Admin.JWTSecret, cfg.Auth.Issuer+"-admin", ttl)
		token, err = issuer.IssueAdmin(*admin)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		expires = time.Now().Add(ttl)
	default:
		fmt.Println("usage: generate-jwt -wallet <address> | -admin <username>")
		os.Exit(2)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("Expires: %s\n", expires.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:%d/api/users\n", token, cfg.Server.Port)
}
