package main

import (
	"fmt"
	"text/tabwriter"
)

func cmdHelp(cfg *Config, args []string) int {
	if len(args) > 0 {
		info, ok := commands[args[0]]
		if !ok {
			fmt.Fprintf(cfg.Stderr, "unknown command: %s\n", args[0])
			return ExitError
		}
		fmt.Fprintf(cfg.Stdout, "%s - %s\n\nusage: %s\n", info.Name, info.Desc, info.Usage)
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(cfg.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "consolecap - end-to-end harness for the cloud console")
	for _, group := range commandsByCategory() {
		fmt.Fprintf(tw, "\n%s:\n", group.Category)
		for _, cmd := range group.Commands {
			fmt.Fprintf(tw, "  %s\t%s\n", cmd.Name, cmd.Desc)
		}
	}
	fmt.Fprintln(tw, "\nRun 'consolecap help <command>' for usage of a command.")
	tw.Flush()
	return ExitSuccess
}
