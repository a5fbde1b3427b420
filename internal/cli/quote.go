package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"etrade-trader/internal/quote"
)

// addQuoteCommand adds a one-shot quote lookup, handy for checking the data
// source before trusting it with a watch plan.
func addQuoteCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "quote <symbol>",
		Short: "Fetch a quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			fetcher := quote.NewYahooFetcher(app.Config.Proxy)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			q, err := fetcher.FetchQuote(ctx, symbol)
			if err != nil {
				output.Error("Quote fetch failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(q)
			}
			output.Printf("%s  %.2f\n", q.Symbol, q.Last)
			if q.PrevClose > 0 {
				change := (q.Last - q.PrevClose) / q.PrevClose * 100
				output.Dim("prev close %.2f (%+.2f%%)", q.PrevClose, change)
			}
			return nil
		},
	})
}
