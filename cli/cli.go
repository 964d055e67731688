package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"

	"fintechx-ops/config"
	"fintechx-ops/core/auth"
	"fintechx-ops/core/rbac"
	"fintechx-ops/core/utils"
)

// Run handles the maintenance subcommands. User and session state lives in
// the server process, so create-user emits a user record suitable for the
// import endpoint instead of writing anywhere itself.
func Run() {
	createUserCmd := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := createUserCmd.String("u", "", "username")
	email := createUserCmd.String("e", "", "email")
	password := createUserCmd.String("p", "", "password")
	role := createUserCmd.String("r", string(rbac.RoleAdmin), "role")

	hashCmd := flag.NewFlagSet("hash-password", flag.ExitOnError)
	hashPassword := hashCmd.String("p", "", "password")

	if len(os.Args) < 2 {
		fmt.Println("commands: create-user, hash-password")
		return
	}

	switch os.Args[1] {
	case "create-user":
		_ = createUserCmd.Parse(os.Args[2:])
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		parsedRole, err := rbac.ParseRole(*role)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		pass := *password
		if pass == "" {
			generated, err := utils.RandString(18)
			if err != nil {
				fmt.Fprintf(os.Stderr, "generate password: %v\n", err)
				os.Exit(1)
			}
			pass = generated
			fmt.Fprintf(os.Stderr, "generated password: %s\n", pass)
		}
		ph := auth.MustHashPassword(pass, cfg.Pepper)
		now := time.Now().UTC()
		record := map[string]any{
			"id":            uuid.Must(uuid.NewV4()).String(),
			"username":      *username,
			"email":         *email,
			"password_hash": ph.Hash,
			"salt":          ph.Salt,
			"role":          string(parsedRole),
			"active":        true,
			"created_at":    now,
			"updated_at":    now,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode([]map[string]any{record}); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	case "hash-password":
		_ = hashCmd.Parse(os.Args[2:])
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		ph := auth.MustHashPassword(*hashPassword, cfg.Pepper)
		fmt.Printf("hash: %s\nsalt: %s\n", ph.Hash, ph.Salt)
	default:
		fmt.Println("unknown command")
	}
}
