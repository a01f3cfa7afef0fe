package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysearch/internal/config"
	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/render"
)

var defaultDiagnoseQueries = []string{
	"When will the government shutdown end",
	"government shutdown end",
	"shutdown",
	"Trump Department Education",
}

const rule = "--------------------------------------------------------------------------------"

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Fetch the catalog once and show how test queries score against it",
		Args:  cobra.NoArgs,
		RunE:  runDiagnoseCommand,
	}
	cmd.Flags().String("keyword", "shutdown", "substring to scan market questions for")
	cmd.Flags().StringSlice("query", nil, "test query to match (repeatable; defaults to a built-in set)")
	cmd.Flags().Int("top", 3, "matches to print per query")
	return cmd
}

func runDiagnoseCommand(cmd *cobra.Command, _ []string) error {
	stack, cfg, err := loadStack(cmd)
	if err != nil {
		return err
	}
	keyword, _ := cmd.Flags().GetString("keyword")
	queries, _ := cmd.Flags().GetStringSlice("query")
	if len(queries) == 0 {
		queries = defaultDiagnoseQueries
	}
	top, _ := cmd.Flags().GetInt("top")

	out := cmd.OutOrStdout()
	section(out, 1, "API CONNECTION")
	printSource(out, cfg)

	start := time.Now()
	snap, err := stack.Source.FetchSnapshot(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "FAILED after %s: %v\n", time.Since(start).Round(time.Millisecond), err)
		return err
	}
	fmt.Fprintf(out, "Fetched %s open markets in %s\n", humanize.Comma(int64(snap.Len())), time.Since(start).Round(time.Millisecond))

	section(out, 2, "FIRST MARKETS")
	for i := 0; i < snap.Len() && i < 10; i++ {
		fmt.Fprintf(out, "%2d. %s\n", i+1, snap.Market(i).Question)
	}

	section(out, 3, fmt.Sprintf("MARKETS CONTAINING %q", keyword))
	hits := scanKeyword(snap, keyword)
	fmt.Fprintf(out, "Found %d\n", len(hits))
	for i, m := range hits {
		if i == 5 {
			fmt.Fprintf(out, "   ... and %d more\n", len(hits)-5)
			break
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, m.Question)
	}

	section(out, 4, "FUZZY MATCHING")
	for _, q := range queries {
		matches := stack.Engine.Match(cmd.Context(), q, snap)
		c := stack.Policy.Classify(q, matches)
		fmt.Fprintf(out, "\nQuery: %q -> %s\n", q, c.Kind)
		if len(matches) == 0 {
			fmt.Fprintln(out, "  no matches")
			continue
		}
		for j, r := range matches {
			if j == top {
				break
			}
			fmt.Fprintf(out, "  %d. [%5.1f%%] %s\n", j+1, r.Score, r.Market.Question)
		}
	}

	section(out, 5, "SAMPLE MARKET")
	if snap.Len() == 0 {
		fmt.Fprintln(out, "catalog is empty")
		return nil
	}
	printMarket(out, snap.Market(0))
	return nil
}

func section(w io.Writer, n int, title string) {
	fmt.Fprintf(w, "\n[%d] %s\n%s\n", n, title, rule)
}

func printSource(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Host:    %s\n", cfg.Polymarket.GammaHost)
	fmt.Fprintf(w, "Limit:   %d\n", cfg.Polymarket.MarketLimit)
	fmt.Fprintf(w, "Closed:  %t\n", cfg.Polymarket.IncludeClosed)
	fmt.Fprintf(w, "Retries: %d\n", cfg.Polymarket.RetryAttempts)
}

func scanKeyword(snap *domain.Snapshot, keyword string) []*domain.Market {
	kw := strings.ToLower(keyword)
	var hits []*domain.Market
	for i := 0; i < snap.Len(); i++ {
		m := snap.Market(i)
		if strings.Contains(strings.ToLower(m.Question), kw) {
			hits = append(hits, m)
		}
	}
	return hits
}

func printMarket(w io.Writer, m *domain.Market) {
	fmt.Fprintf(w, "id:       %s\n", m.ID)
	fmt.Fprintf(w, "slug:     %s\n", m.Slug)
	fmt.Fprintf(w, "question: %s\n", m.Question)
	fmt.Fprintf(w, "url:      %s\n", m.URL())
	fmt.Fprintf(w, "outcomes: %s / %s\n", m.Outcomes[0], m.Outcomes[1])
	if m.Prices.Available {
		fmt.Fprintf(w, "prices:   %.3f / %.3f\n", m.Prices.Yes, m.Prices.No)
	} else {
		fmt.Fprintln(w, "prices:   unavailable")
	}
	fmt.Fprintf(w, "volume:   %s\n", render.FormatVolume(m.Volume))
	fmt.Fprintf(w, "closes:   %s\n", render.FormatDate(m.EndDate))
}
