package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"PriceVault/internal/model"
	"PriceVault/internal/retriever"
)

var (
	fromFlag   string
	toFlag     string
	daysFlag   int
	jsonOutput bool
)

func addRangeFlags(c *cobra.Command) {
	c.Flags().StringVar(&fromFlag, "from", "", "first day, YYYY-MM-DD (default: --days before --to)")
	c.Flags().StringVar(&toFlag, "to", "", "last day, YYYY-MM-DD (default: today)")
	c.Flags().IntVar(&daysFlag, "days", 30, "range length when --from is not given")
}

// dateRange resolves the --from/--to/--days flags.
func dateRange() (time.Time, time.Time, error) {
	end := model.Today()
	if toFlag != "" {
		d, err := model.ParseDate(toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = d
	}
	start := end.AddDate(0, 0, -daysFlag)
	if fromFlag != "" {
		d, err := model.ParseDate(fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = d
	}
	return start, end, nil
}

var historyCmd = &cobra.Command{
	Use:     "history SYMBOL",
	Short:   "Print daily prices for a symbol",
	Example: "  pricevault history AAPL --from 2024-01-01 --to 2024-01-05",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := dateRange()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		recs, outcome, err := a.retriever.GetHistoryWithOutcome(cmd.Context(), args[0], start, end)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]any{"source": outcome, "records": recs})
		}
		writeRecords(out, recs)
		writeSource(out, outcome)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare SYMBOL1 SYMBOL2",
	Short: "Print two symbols side by side over the same range",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := dateRange()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		h1, h2, err := a.retriever.Compare(cmd.Context(), args[0], args[1], start, end)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]any{
				model.NormalizeSymbol(args[0]): h1,
				model.NormalizeSymbol(args[1]): h2,
			})
		}
		writeComparison(out, model.NormalizeSymbol(args[0]), model.NormalizeSymbol(args[1]), h1, h2)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest SYMBOL",
	Short: "Print the most recent known price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rec, outcome, err := a.retriever.Latest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]any{"source": outcome, "record": rec})
		}
		writeRecords(out, []model.PriceRecord{rec})
		writeSource(out, outcome)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Summarise a symbol's prices over a range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := dateRange()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		an, outcome, err := a.retriever.Analyze(cmd.Context(), args[0], start, end)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]any{"source": outcome, "analysis": an})
		}
		writeAnalysis(out, an)
		writeSource(out, outcome)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, compareCmd, analyzeCmd} {
		addRangeFlags(c)
	}
	for _, c := range []*cobra.Command{historyCmd, compareCmd, latestCmd, analyzeCmd, statsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRecords(w io.Writer, recs []model.PriceRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tSYMBOL\tCLOSE\tCHANGE\tCHANGE %\tVOLUME\t")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%+.2f\t%+.2f\t%d\t\n",
			model.FormatDate(r.Date), r.Symbol, r.Price, r.Change, r.PercentChange, r.Volume)
	}
	tw.Flush()
}

func writeComparison(w io.Writer, sym1, sym2 string, h1, h2 []model.PriceRecord) {
	byDate := make(map[time.Time]float64, len(h2))
	for _, r := range h2 {
		byDate[r.Date] = r.Price
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "DATE\t%s\t%s\tRATIO\t\n", sym1, sym2)
	for _, r := range h1 {
		p2, ok := byDate[r.Date]
		if !ok || p2 == 0 {
			fmt.Fprintf(tw, "%s\t%.2f\t-\t-\t\n", model.FormatDate(r.Date), r.Price)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.4f\t\n", model.FormatDate(r.Date), r.Price, p2, r.Price/p2)
	}
	tw.Flush()
}

func writeAnalysis(w io.Writer, a model.Analysis) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Symbol\t%s\n", a.Symbol)
	fmt.Fprintf(tw, "Range\t%s → %s (%d days with data)\n", model.FormatDate(a.Start), model.FormatDate(a.End), a.Count)
	if a.Count > 0 {
		fmt.Fprintf(tw, "First / Last\t%.2f / %.2f\n", a.First, a.Last)
		fmt.Fprintf(tw, "Low / High\t%.2f / %.2f\n", a.Low, a.High)
		fmt.Fprintf(tw, "Mean\t%.2f\n", a.Mean)
		fmt.Fprintf(tw, "Return\t%+.2f%%\n", a.ReturnPct)
		if a.SMA20 > 0 {
			fmt.Fprintf(tw, "SMA20\t%.2f\n", a.SMA20)
		}
		fmt.Fprintf(tw, "RSI14\t%.1f\n", a.RSI14)
		fmt.Fprintf(tw, "Range position\t%.0f%%\n", a.Position*100)
		fmt.Fprintf(tw, "Avg volume\t%d\n", a.AvgVolume)
	}
	tw.Flush()
}

func writeSource(w io.Writer, o retriever.Outcome) {
	if o == retriever.OutcomeSynthetic {
		fmt.Fprintln(w, "\nwarning: provider unavailable, values are synthetic and were not stored")
		return
	}
	fmt.Fprintf(w, "\nsource: %s\n", o)
}
