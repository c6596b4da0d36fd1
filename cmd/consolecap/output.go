package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// TextValuer is implemented by results that print as a single line in
// text output. Anything else prints as indented JSON.
type TextValuer interface {
	TextValue() string
}

func (r URLResult) TextValue() string      { return r.URL }
func (r WaitResult) TextValue() string     { return r.Condition }
func (r TokenResult) TextValue() string    { return r.Token }
func (r LaunchResult) TextValue() string   { return strconv.Itoa(r.Port) }
func (r PathResult) TextValue() string     { return r.Path }
func (r CheckoutResult) TextValue() string { return r.Username }

func encodeJSON(w io.Writer, v interface{}, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// outputResult writes v to stdout in cfg.Output format.
func outputResult(cfg *Config, v interface{}) int {
	var err error
	switch cfg.Output {
	case "json":
		err = encodeJSON(cfg.Stdout, v, true)
	case "ndjson":
		err = encodeJSON(cfg.Stdout, v, false)
	case "text":
		if tv, ok := v.(TextValuer); ok {
			_, err = fmt.Fprintln(cfg.Stdout, tv.TextValue())
		} else {
			err = encodeJSON(cfg.Stdout, v, true)
		}
	default:
		err = fmt.Errorf("unknown output format: %s", cfg.Output)
	}
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}
