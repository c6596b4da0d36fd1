package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomyan/consolecap/internal/fixture"
)

// CleanResult is returned by fixtures clean.
type CleanResult struct {
	Removed []fixture.Resource `json:"removed"`
	Errors  []string           `json:"errors,omitempty"`
}

func cmdFixtures(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("fixtures", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	token := fs.String("token", "", "API token (env: CONSOLECAP_TOKEN, default the first pooled token)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}
	remaining := fs.Args()
	if len(remaining) < 1 {
		return cmdMissingArg(cfg, "consolecap fixtures [--token T] <linode|volume|domain|nodebalancer|apply|list|clean> [args...]")
	}
	sub, rest := remaining[0], remaining[1:]

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	tok, err := apiToken(ctx, cfg, *token)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	client := fixture.NewClient(tok, cfg.Env.FixtureOptions(cfg.Logger)...)

	var result interface{}
	switch sub {
	case "linode", "volume", "domain", "nodebalancer":
		result, err = fixturesCreate(ctx, cfg, client, sub, rest)
	case "apply":
		if len(rest) < 1 {
			return cmdMissingArg(cfg, "consolecap fixtures apply <manifest.yaml>")
		}
		result, err = fixturesApply(ctx, client, rest[0])
	case "list":
		if len(rest) < 1 {
			return cmdMissingArg(cfg, "consolecap fixtures list <kind>")
		}
		result, err = fixturesList(ctx, client, rest[0])
	case "clean":
		// Cleanup waits out settle delays and volume retries, so it is not
		// bound by --timeout. Each request keeps the client's HTTP timeout.
		cleanCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = cleanCtx
		result, err = fixturesClean(ctx, cfg, client)
	default:
		fmt.Fprintf(cfg.Stderr, "unknown fixtures command: %s\n", sub)
		return ExitError
	}
	if err != nil {
		if sub == "apply" || sub == "clean" {
			// Report what was done before the failure.
			outputResult(cfg, result)
		}
		return fail(ctx, cfg, err)
	}
	return outputResult(cfg, result)
}

// apiToken picks the token from the flag, then CONSOLECAP_TOKEN, then the
// first pooled credential that has one.
func apiToken(ctx context.Context, cfg *Config, flagToken string) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	if v := os.Getenv("CONSOLECAP_TOKEN"); v != "" {
		return v, nil
	}
	creds, err := store(cfg).List(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range creds {
		if c.Token != "" {
			return c.Token, nil
		}
	}
	return "", errors.New("no API token: pass --token, set CONSOLECAP_TOKEN or seed the credential pool")
}

func fixturesCreate(ctx context.Context, cfg *Config, c *fixture.Client, kind string, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("fixtures "+kind, flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	label := fs.String("label", "", "Label (default a unique ASD label)")
	region := fs.String("region", fixture.DefaultRegion, "Region")

	switch kind {
	case "linode":
		typ := fs.String("type", fixture.DefaultType, "Plan type")
		image := fs.String("image", fixture.DefaultImage, "Image")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.CreateLinode(ctx, fixture.LinodeOptions{Label: *label, Region: *region, Type: *typ, Image: *image})

	case "volume":
		size := fs.Int("size", 10, "Size in GB")
		linodeID := fs.Int("linode", 0, "Attach to this Linode id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		opts := fixture.VolumeOptions{Label: *label, Size: *size, Region: *region}
		if opts.Label == "" {
			opts.Label = fixture.Label("vol")
		}
		if *linodeID != 0 {
			opts.LinodeID = linodeID
			opts.Region = ""
		}
		return c.CreateVolume(ctx, opts)

	case "domain":
		domain := fs.String("domain", "", "Zone name (default a unique asd- zone)")
		soa := fs.String("soa-email", "", "SOA email (default random)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *domain == "" {
			*domain = fixture.DomainName()
		}
		return c.CreateDomain(ctx, fixture.DomainOptions{Domain: *domain, Type: "master", SOAEmail: *soa})

	default:
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.CreateNodeBalancer(ctx, fixture.NodeBalancerOptions{Label: *label, Region: *region})
	}
}

func fixturesApply(ctx context.Context, c *fixture.Client, path string) (interface{}, error) {
	m, err := fixture.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	applied, err := c.Apply(ctx, m)
	return applied, err
}

func fixturesList(ctx context.Context, c *fixture.Client, name string) (interface{}, error) {
	kind, err := fixture.ParseKind(name)
	if err != nil {
		return nil, err
	}
	switch kind {
	case fixture.KindLinode:
		return c.ListLinodes(ctx)
	case fixture.KindVolume:
		return c.ListVolumes(ctx)
	case fixture.KindDomain:
		return c.ListDomains(ctx)
	case fixture.KindNodeBalancer:
		return c.ListNodeBalancers(ctx)
	case fixture.KindUser:
		return c.ListUsers(ctx)
	case fixture.KindToken:
		return c.ListTokens(ctx)
	default:
		return c.ListSSHKeys(ctx)
	}
}

// fixturesClean empties the account, keeping the pooled users.
func fixturesClean(ctx context.Context, cfg *Config, c *fixture.Client) (interface{}, error) {
	creds, err := store(cfg).List(ctx)
	if err != nil {
		return nil, err
	}
	keep := make([]string, 0, len(creds))
	for _, cr := range creds {
		keep = append(keep, cr.Username)
	}

	report := c.CleanAccount(ctx, keep...)
	res := CleanResult{Removed: report.Removed()}
	if res.Removed == nil {
		res.Removed = []fixture.Resource{}
	}
	for _, e := range report.Errors() {
		res.Errors = append(res.Errors, e.Error())
	}
	if err := report.Err(); err != nil {
		return res, err
	}
	return res, nil
}
