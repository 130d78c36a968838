package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/brojonat/walletexport/service/pricing"
	"github.com/urfave/cli/v2"
)

type chainInfo struct {
	Chain    ledger.Chain `json:"chain"`
	ChainID  int64        `json:"chain_id,omitempty"`
	Platform string       `json:"platform"`
	Source   string       `json:"source"`
}

func supportedChains() []chainInfo {
	chains := make([]chainInfo, 0, len(ledger.EVMChains)+1)
	for _, c := range ledger.EVMChains {
		id, _ := c.ChainID()
		chains = append(chains, chainInfo{Chain: c, ChainID: id, Platform: pricing.Platform(c), Source: "etherscan"})
	}
	return append(chains, chainInfo{Chain: ledger.Solana, Platform: pricing.Platform(ledger.Solana), Source: "rpc"})
}

func chainsCommand() *cli.Command {
	return &cli.Command{
		Name:  "chains",
		Usage: "List supported chains and their pricing platforms",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
		Action: func(c *cli.Context) error {
			chains := supportedChains()

			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(chains)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHAIN\tCHAIN ID\tPLATFORM\tSOURCE")
			for _, ch := range chains {
				id := "-"
				if ch.ChainID != 0 {
					id = fmt.Sprint(ch.ChainID)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Chain, id, ch.Platform, ch.Source)
			}
			return w.Flush()
		},
	}
}
