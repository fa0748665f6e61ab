// Command devtoken prints a bearer token for calling the API locally.
//
//	go run ./cmd/devtoken -sub alice -role CUSTOMER
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-inventory/internal/config"
	"github.com/iliyamo/cinema-seat-inventory/internal/logger"
	"github.com/iliyamo/cinema-seat-inventory/internal/utils"
)

func main() {
	sub := flag.String("sub", "dev-user", "token subject (owner id)")
	role := flag.String("role", "CUSTOMER", "CUSTOMER, OWNER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	log := logger.New(logger.Config{Format: logger.TEXT})
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "error", err)
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, *sub, *role, *ttl)
	if err != nil {
		log.Fatal("sign token", "error", err)
	}
	fmt.Println(tok.Token)
}
