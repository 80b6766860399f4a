package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

// tokenAdmin is the part of auth.PostgresTokenStore the token commands use
type tokenAdmin interface {
	CreateToken(ctx context.Context, req auth.CreateTokenRequest) (*auth.APIToken, string, error)
	RevokeToken(ctx context.Context, tokenID, revokedBy int64, reason string) error
	ListUserTokens(ctx context.Context, userID int64) ([]*auth.APIToken, error)
}

// openTokenStore connects to the token database; tests swap it
var openTokenStore = func(databaseURL string) (tokenAdmin, func() error, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return auth.NewPostgresTokenStore(db), db.Close, nil
}

func newTokenCommand() *Command {
	return &Command{
		Name:        "token",
		Description: "Issue, list and revoke API tokens (create | list | revoke)",
		Flags:       flag.NewFlagSet("token", flag.ContinueOnError),
		Run:         runToken,
	}
}

func runToken(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: token <create|list|revoke> [flags]")
	}

	switch args[0] {
	case "create":
		return runTokenCreate(args[1:])
	case "list":
		return runTokenList(args[1:])
	case "revoke":
		return runTokenRevoke(args[1:])
	default:
		return fmt.Errorf("unknown token command: %s", args[0])
	}
}

func tokenFlags(name string) (*flag.FlagSet, *string) {
	flags := flag.NewFlagSet("token "+name, flag.ContinueOnError)
	flags.SetOutput(out)
	dbURL := flags.String("database-url", os.Getenv("TENANTGATE_DATABASE_URL"), "PostgreSQL connection URL")
	return flags, dbURL
}

func withTokenStore(databaseURL string, fn func(ctx context.Context, store tokenAdmin) error) error {
	if databaseURL == "" {
		return errors.New("-database-url or TENANTGATE_DATABASE_URL is required")
	}
	store, closeFn, err := openTokenStore(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, store)
}

func runTokenCreate(args []string) error {
	flags, dbURL := tokenFlags("create")
	userID := flags.Int64("user", 0, "User the token authenticates")
	name := flags.String("name", "", "Token name")
	description := flags.String("description", "", "Token description")
	expires := flags.Duration("expires", 0, "Lifetime, e.g. 720h; 0 never expires")
	if err := flags.Parse(args); err != nil {
		return err
	}

	req := auth.CreateTokenRequest{UserID: *userID, Name: *name, Description: *description}
	if *expires > 0 {
		at := time.Now().UTC().Add(*expires)
		req.ExpiresAt = &at
	}

	return withTokenStore(*dbURL, func(ctx context.Context, store tokenAdmin) error {
		token, plaintext, err := store.CreateToken(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created token %d (%s) for user %d\n", token.ID, token.Name, token.UserID)
		fmt.Fprintf(out, "%s\n", plaintext)
		fmt.Fprintln(out, "Store it now, it cannot be shown again.")
		return nil
	})
}

func runTokenList(args []string) error {
	flags, dbURL := tokenFlags("list")
	userID := flags.Int64("user", 0, "User whose tokens to list")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("-user is required")
	}

	return withTokenStore(*dbURL, func(ctx context.Context, store tokenAdmin) error {
		tokens, err := store.ListUserTokens(ctx, *userID)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, t := range tokens {
			state := "active"
			if !t.IsUsable(now) {
				state = "unusable"
			}
			fmt.Fprintf(out, "%-6d %-12s %-20s %s\n", t.ID, t.TokenPrefix, t.Name, state)
		}
		return nil
	})
}

func runTokenRevoke(args []string) error {
	flags, dbURL := tokenFlags("revoke")
	tokenID := flags.Int64("id", 0, "Token ID")
	by := flags.Int64("by", 0, "User revoking the token")
	reason := flags.String("reason", "", "Revocation reason")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *tokenID <= 0 {
		return errors.New("-id is required")
	}

	return withTokenStore(*dbURL, func(ctx context.Context, store tokenAdmin) error {
		if err := store.RevokeToken(ctx, *tokenID, *by, *reason); err != nil {
			return err
		}
		fmt.Fprintf(out, "Revoked token %d\n", *tokenID)
		return nil
	})
}
