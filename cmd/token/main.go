// Command token prints a signed access token for local testing, e.g.
//
//	go run ./cmd/token -role OPERATOR -operator op-a -sub 7
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/journey-seat-booking/internal/logging"
	"github.com/iliyamo/journey-seat-booking/internal/utils"
)

func main() {
	sub := flag.Uint64("sub", 1, "user id (sub claim)")
	role := flag.String("role", "CUSTOMER", "CUSTOMER, OPERATOR or ADMIN")
	operator := flag.String("operator", "", "operator id for OPERATOR tokens")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	logging.Setup()
	_ = godotenv.Load()
	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *sub, *role, *operator, *ttl)
	if err != nil {
		logging.Component("token").Error("sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
