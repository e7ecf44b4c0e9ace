package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/i2y/autofix/config"
	"github.com/i2y/autofix/provider"
)

func listProviders(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tAPI BASE\tTPM\tKEY ENV")
	for _, t := range provider.Available() {
		d := config.Defaults(t)
		tpm := "none"
		if d.RateLimitEnabled() {
			tpm = fmt.Sprint(d.TokensPerMinute())
		}
		keyEnv := config.KeyEnv(t)
		if keyEnv == "" {
			keyEnv = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t, d.Model, d.APIBase, tpm, keyEnv)
	}
	return tw.Flush()
}
