package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"awardfinder-backend/lib/dataset"
	"awardfinder-backend/lib/osutil"
	"awardfinder-backend/lib/sources/base"
	"awardfinder-backend/lib/sources/mellon"
	"awardfinder-backend/lib/sources/nih"
	"awardfinder-backend/lib/sources/nsf"
	"awardfinder-backend/lib/sources/sloan"
	"awardfinder-backend/lib/sources/templeton"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	fetchQuery      string
	fetchFrom       string
	fetchTo         string
	fetchSkipFailed bool
	fetchCsv        bool
	fetchOutput     string
	fetchDumpHttp   bool
)

func init() {
	fetchCmd.Flags().StringVarP(&fetchQuery, "query", "q", "", "keyword filter")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "earliest award date, e.g. 2021-01-01")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "latest award date, e.g. 2023-12-31")
	fetchCmd.Flags().BoolVar(&fetchSkipFailed, "skip-failed", false, "log and skip failed pages instead of aborting")
	fetchCmd.Flags().BoolVar(&fetchCsv, "csv", false, "write csv instead of a rendered table")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "write to a file instead of stdout")
	fetchCmd.Flags().BoolVar(&fetchDumpHttp, "dump-http", false, "dump http exchanges to the configured directory")
	rootCmd.AddCommand(fetchCmd)
}

func sourceFor(name string, pw progress.Writer) (base.Source, bool) {
	dumpDir := ""
	if fetchDumpHttp {
		dumpDir = config.DumpHttpDir
		if dumpDir == "" {
			dumpDir = "http_dump"
		}
	}
	delay := time.Duration(config.PageDelaySeconds) * time.Second

	switch name {
	case "mellon":
		return mellon.NewClient(mellon.ClientOptions{
			BaseURL:  config.Mellon.BaseUrl,
			Delay:    delay,
			Progress: pw,
			DumpDir:  dumpDir,
		}), true
	case "nih":
		return nih.NewClient(nih.ClientOptions{
			BaseURL:   config.Nih.BaseUrl,
			PageDelay: delay,
			Progress:  pw,
			DumpDir:   dumpDir,
		}), true
	case "nsf":
		return nsf.NewClient(nsf.ClientOptions{
			BaseURL:  config.Nsf.BaseUrl,
			Progress: pw,
			DumpDir:  dumpDir,
		}), true
	case "sloan":
		return sloan.NewClient(sloan.ClientOptions{
			BaseURL:   config.Sloan.BaseUrl,
			PageDelay: delay,
			Progress:  pw,
			DumpDir:   dumpDir,
		}), true
	case "templeton":
		return templeton.NewClient(templeton.ClientOptions{
			BaseURL:  config.Templeton.BaseUrl,
			Progress: pw,
			DumpDir:  dumpDir,
		}), true
	}
	return nil, false
}

var sourceNames = []string{"mellon", "nih", "nsf", "sloan", "templeton"}

func closestSource(name string) string {
	best := ""
	bestSim := 0.0
	for _, candidate := range sourceNames {
		sim := matchr.JaroWinkler(name, candidate, false)
		if sim > bestSim {
			bestSim = sim
			best = candidate
		}
	}
	return best
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <source>",
	Short: "Fetch awards from one source and print them as a table or csv.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pw := progress.NewWriter()
		pw.SetOutputWriter(os.Stderr)
		src, ok := sourceFor(args[0], pw)
		if !ok {
			fmt.Fprintf(
				os.Stderr, "unknown source %q, did you mean %q?\n",
				args[0], closestSource(args[0]),
			)
			os.Exit(1)
		}
		go pw.Render()

		ctx := osutil.SignalContext()
		result, err := src.GetData(ctx, base.Query{
			Text:            fetchQuery,
			From:            fetchFrom,
			To:              fetchTo,
			SkipFailedPages: fetchSkipFailed,
		})
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(time.Millisecond * 10)
		}

		if errors.Is(err, base.ErrEmptyResult) {
			fmt.Fprintln(os.Stderr, "no awards matched the query")
			return
		}
		if err != nil {
			osutil.Fatal("failed to fetch awards", err)
		}

		out := os.Stdout
		if fetchOutput != "" {
			out, err = os.Create(fetchOutput)
			if err != nil {
				osutil.Fatal("failed to open output file", err)
			}
			defer out.Close()
		}

		if fetchCsv {
			err = writeCsv(out, result)
			if err != nil {
				osutil.Fatal("failed to write csv", err)
			}
			return
		}
		renderTable(out, result)
	},
}

func writeCsv(out *os.File, t *dataset.Table) error {
	w := csv.NewWriter(out)
	if err := w.Write(t.Columns()); err != nil {
		return err
	}
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		record := make([]string, 0, len(t.Columns()))
		for _, col := range t.Columns() {
			record = append(record, formatCell(row[col]))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func renderTable(out *os.File, t *dataset.Table) {
	w := table.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(table.StyleRounded)

	header := table.Row{}
	for _, col := range t.Columns() {
		header = append(header, col)
	}
	w.AppendHeader(header)

	for i := 0; i < t.Len(); i++ {
		rowData := t.Row(i)
		row := table.Row{}
		for _, col := range t.Columns() {
			row = append(row, formatCell(rowData[col]))
		}
		w.AppendRow(row)
	}
	w.Render()
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", x)
	default:
		return fmt.Sprint(v)
	}
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the available funding sources.",
	Run: func(cmd *cobra.Command, args []string) {
		w := table.NewWriter()
		w.SetOutputMirror(os.Stdout)
		w.SetStyle(table.StyleRounded)
		w.AppendHeader(table.Row{"name", "description"})

		names := append([]string{}, sourceNames...)
		sort.Strings(names)
		for _, name := range names {
			w.AppendRow(table.Row{name, sourceDescriptions[name]})
		}
		w.Render()
	},
}

var sourceDescriptions = map[string]string{
	"mellon":    "Mellon Foundation grant database (GraphQL)",
	"nih":       "NIH RePORTER project search (REST)",
	"nsf":       "NSF award search (REST)",
	"sloan":     "Alfred P. Sloan Foundation grants database (scraped)",
	"templeton": "John Templeton Foundation grant database (scraped)",
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
