package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/nodeweave/nodeweave/pkg/auth"
)

// gentoken prints a pairing token value for manual insertion, useful when
// bootstrapping a node before the admin UI is reachable.
func main() {
	ttl := flag.Duration("ttl", 15*time.Minute, "How long the token should stay valid")
	flag.Parse()

	token, err := auth.NewPairingToken()
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		return
	}

	fmt.Printf("Token:   %s\n", token)
	fmt.Printf("Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
}
