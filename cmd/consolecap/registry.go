package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name     string
	Desc     string
	Usage    string
	Category string
	Run      func(cfg *Config, args []string) int
}

// commands is the registry of all available commands. It is filled in
// init because handlers read their own usage from it.
var commands map[string]CommandInfo

func init() {
	commands = map[string]CommandInfo{
		// Browser
		"goto": {Name: "goto", Desc: "Open a console path and wait for the URL", Category: "Browser",
			Usage: "consolecap goto <path>",
			Run:   func(cfg *Config, args []string) int { return cmdGoto(cfg, args) }},
		"login": {Name: "login", Desc: "Log in with a pooled credential", Category: "Browser",
			Usage: "consolecap login [--spec name] [--url login-url]",
			Run:   func(cfg *Config, args []string) int { return cmdLogin(cfg, args) }},
		"screenshot": {Name: "screenshot", Desc: "Save a PNG of the page", Category: "Browser",
			Usage: "consolecap screenshot <file.png>",
			Run:   func(cfg *Config, args []string) int { return cmdScreenshot(cfg, args) }},
		"launch": {Name: "launch", Desc: "Start Chrome with remote debugging", Category: "Browser",
			Usage: "consolecap launch [--wait]",
			Run:   func(cfg *Config, args []string) int { return cmdLaunch(cfg, args) }},

		// Wait & assert
		"wait": {Name: "wait", Desc: "Wait for page state within a timeout tier", Category: "Wait & assert",
			Usage: "consolecap wait <visible|invisible|exists|gone|text|count|url> <selector|substring> [value] [--tier name]",
			Run:   func(cfg *Config, args []string) int { return cmdWait(cfg, args) }},
		"assert": {Name: "assert", Desc: "Assert page state once", Category: "Wait & assert",
			Usage: "consolecap assert <text|exists|visible|count|url> <selector|substring> [expected]",
			Run:   func(cfg *Config, args []string) int { return cmdAssert(cfg, args) }},
		"tiers": {Name: "tiers", Desc: "Show the resolved timeout tiers", Category: "Wait & assert",
			Usage: "consolecap tiers",
			Run:   func(cfg *Config, args []string) int { return cmdTiers(cfg) }},
		"locators": {Name: "locators", Desc: "List and validate page object locators", Category: "Wait & assert",
			Usage: "consolecap locators [--page name]",
			Run:   func(cfg *Config, args []string) int { return cmdLocators(cfg, args) }},

		// Credentials
		"creds": {Name: "creds", Desc: "Manage the credential pool", Category: "Credentials",
			Usage: "consolecap creds <list|seed|checkout|checkin|token|reset|remove> [args...]",
			Run:   func(cfg *Config, args []string) int { return cmdCreds(cfg, args) }},

		// Fixtures
		"fixtures": {Name: "fixtures", Desc: "Create, list and clean API fixtures", Category: "Fixtures",
			Usage: "consolecap fixtures <create|apply|list|clean> [args...]",
			Run:   func(cfg *Config, args []string) int { return cmdFixtures(cfg, args) }},
	}

	commands["help"] = CommandInfo{Name: "help", Desc: "Show help for a command", Category: "Utility",
		Usage: "consolecap help [command]",
		Run:   func(cfg *Config, args []string) int { return cmdHelp(cfg, args) }}
	commands["retry"] = CommandInfo{Name: "retry", Desc: "Retry a command on failure", Category: "Utility",
		Usage: "consolecap retry [--attempts N] [--interval duration] <command> [args...]",
		Run:   func(cfg *Config, args []string) int { return cmdRetry(cfg, args) }}
}

// cmdMissingArg prints a usage message and returns ExitError.
func cmdMissingArg(cfg *Config, usage string) int {
	fmt.Fprintln(cfg.Stderr, "usage: "+usage)
	return ExitError
}

// categoryOrder defines the display order for command categories.
var categoryOrder = []string{
	"Browser",
	"Wait & assert",
	"Credentials",
	"Fixtures",
	"Utility",
}

type commandGroup struct {
	Category string
	Commands []CommandInfo
}

// commandsByCategory returns commands grouped by category, with sorted names within each category.
func commandsByCategory() []commandGroup {
	grouped := make(map[string][]CommandInfo)
	for _, cmd := range commands {
		grouped[cmd.Category] = append(grouped[cmd.Category], cmd)
	}

	var result []commandGroup
	for _, cat := range categoryOrder {
		cmds := grouped[cat]
		if len(cmds) == 0 {
			continue
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
		result = append(result, commandGroup{Category: cat, Commands: cmds})
	}
	return result
}

// printUsage prints the usage message with commands grouped by category.
func printUsage(cfg *Config, fs *flag.FlagSet) {
	fmt.Fprintln(cfg.Stderr, "usage: consolecap [flags] <command>")
	fmt.Fprintln(cfg.Stderr)

	for _, group := range commandsByCategory() {
		fmt.Fprintf(cfg.Stderr, "  %s:\n", group.Category)
		names := make([]string, len(group.Commands))
		for i, cmd := range group.Commands {
			names[i] = cmd.Name
		}
		fmt.Fprintf(cfg.Stderr, "    %s\n", strings.Join(names, ", "))
		fmt.Fprintln(cfg.Stderr)
	}

	fmt.Fprintln(cfg.Stderr, "flags:")
	fs.PrintDefaults()
}
