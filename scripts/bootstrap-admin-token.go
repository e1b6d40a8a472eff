package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pagepulse/pagepulse/internal/auth"
)

type output struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

// Generates a fresh admin token and the argon2id hash to put in
// ADMIN_TOKEN_HASH. The plaintext is shown once and never stored.
func main() {
	format := flag.String("format", "plain", "Output format: plain or json")
	flag.Parse()

	generated, err := auth.GenerateAdminToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate admin token:", err)
		os.Exit(1)
	}

	out := output{
		Token: generated.Plaintext,
		Hash:  generated.Hash,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println("token:", out.Token)
		fmt.Println("ADMIN_TOKEN_HASH:", out.Hash)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
