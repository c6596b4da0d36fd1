package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tomyan/consolecap/internal/credentials"
)

// CredentialResult is one pool entry with the secrets left out.
type CredentialResult struct {
	Username      string `json:"username"`
	InUse         bool   `json:"inUse"`
	Spec          string `json:"spec,omitempty"`
	HasToken      bool   `json:"hasToken"`
	IsPresetToken bool   `json:"isPresetToken"`
}

// CheckoutResult is returned by creds checkout.
type CheckoutResult struct {
	Username string `json:"username"`
	Spec     string `json:"spec"`
}

// TokenResult is returned by creds token.
type TokenResult struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// PoolResult summarizes a pool after a bulk change.
type PoolResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

func cmdCreds(cfg *Config, args []string) int {
	if len(args) < 1 {
		return cmdMissingArg(cfg, commands["creds"].Usage)
	}
	sub, rest := args[0], args[1:]

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	st := store(cfg)

	var result interface{}
	var err error
	switch sub {
	case "list":
		result, err = credsList(ctx, st)
	case "seed":
		result, err = credsSeed(ctx, cfg, st, rest)
	case "checkout":
		if len(rest) < 1 {
			return cmdMissingArg(cfg, "consolecap creds checkout <spec>")
		}
		var c credentials.Credential
		c, err = st.Checkout(ctx, rest[0])
		result = CheckoutResult{Username: c.Username, Spec: rest[0]}
	case "checkin":
		if len(rest) < 1 {
			return cmdMissingArg(cfg, "consolecap creds checkin <spec>")
		}
		err = st.Checkin(ctx, rest[0])
		result = CheckoutResult{Spec: rest[0]}
	case "token":
		if len(rest) < 1 {
			return cmdMissingArg(cfg, "consolecap creds token <username> [token]")
		}
		result, err = credsToken(ctx, st, rest)
	case "reset":
		if err = st.Reset(ctx); err == nil {
			result, err = poolResult(ctx, st)
		}
	case "remove":
		err = st.Remove(ctx)
		result = PoolResult{Path: st.Path()}
	default:
		fmt.Fprintf(cfg.Stderr, "unknown creds command: %s\n", sub)
		return ExitError
	}
	if err != nil {
		return fail(ctx, cfg, err)
	}
	return outputResult(cfg, result)
}

func credsList(ctx context.Context, st *credentials.FileStore) ([]CredentialResult, error) {
	creds, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CredentialResult, 0, len(creds))
	for _, c := range creds {
		out = append(out, CredentialResult{
			Username:      c.Username,
			InUse:         c.InUse,
			Spec:          c.Spec,
			HasToken:      c.Token != "",
			IsPresetToken: c.IsPresetToken,
		})
	}
	return out, nil
}

// credsSeed replaces the pool from a JSON file or, by default, from the
// environment under the configured prefix.
func credsSeed(ctx context.Context, cfg *Config, st *credentials.FileStore, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("creds seed", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	prefix := fs.String("env", cfg.Env.CredentialsEnv, "Environment variable prefix")
	file := fs.String("file", "", "JSON file with an array of credentials")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var creds []credentials.Credential
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", *file, err)
		}
	} else {
		var err error
		if creds, err = credentials.FromEnv(*prefix); err != nil {
			return nil, err
		}
	}
	if err := st.Seed(ctx, creds); err != nil {
		return nil, err
	}
	return poolResult(ctx, st)
}

// credsToken prints a user's token, or stores a new one when given.
func credsToken(ctx context.Context, st *credentials.FileStore, args []string) (TokenResult, error) {
	username := args[0]
	if len(args) > 1 {
		if err := st.SetToken(ctx, username, args[1]); err != nil {
			return TokenResult{}, err
		}
	}
	creds, err := st.List(ctx)
	if err != nil {
		return TokenResult{}, err
	}
	for _, c := range creds {
		if c.Username == username {
			return TokenResult{Username: username, Token: c.Token}, nil
		}
	}
	return TokenResult{}, fmt.Errorf("%s: %w", username, credentials.ErrUnknownUser)
}

func poolResult(ctx context.Context, st *credentials.FileStore) (PoolResult, error) {
	creds, err := st.List(ctx)
	if err != nil {
		return PoolResult{}, err
	}
	return PoolResult{Path: st.Path(), Count: len(creds)}, nil
}
