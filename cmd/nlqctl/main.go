// Command nlqctl runs the question pipeline from a terminal, one stage or end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nlq2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/nlq2sql/pkg/app"
	"github.com/ekaya-inc/nlq2sql/pkg/config"
	"github.com/ekaya-inc/nlq2sql/pkg/models"
)

// Version is set at build time via ldflags
var Version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
	noColor    bool
	asJSON     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "nlqctl",
		Short:        "Turn clinical questions into SQL over the OMOP schema",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if opts.noColor {
			color.NoColor = true
		}
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config.yaml", "Path to the YAML config; environment variables override it")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline stages to stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&opts.asJSON, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(detectCmd(opts))
	rootCmd.AddCommand(rewriteCmd(opts))
	rootCmd.AddCommand(renderCmd(opts))
	rootCmd.AddCommand(askCmd(opts))
	rootCmd.AddCommand(adaptersCmd(opts))

	return rootCmd
}

// open loads configuration and wires the pipeline without a feedback store.
func (o *rootOptions) open(ctx context.Context) (*app.App, *config.Config, error) {
	cfg, err := config.LoadFrom(o.configPath, Version)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop()
	if o.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, nil, fmt.Errorf("failed to init logger: %w", err)
		}
	}

	a, err := app.New(ctx, cfg, logger, app.Options{SkipFeedbackStore: true})
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func detectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect QUESTION",
		Short: "Detect, disambiguate and number the entities of a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			detected, err := a.Pipeline.Detect(ctx, question)
			if err != nil {
				return err
			}
			table, err := a.Pipeline.Process(ctx, detected, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, table)
			}
			fmt.Fprintln(out, highlight(question, table))
			fmt.Fprintln(out)
			printEntities(out, table)
			return nil
		},
	}
}

func rewriteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite QUESTION",
		Short: "Print the generalized form of a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			detected, err := a.Pipeline.Detect(ctx, question)
			if err != nil {
				return err
			}
			table, err := a.Pipeline.Process(ctx, detected, nil)
			if err != nil {
				return err
			}

			generalized := a.Pipeline.Rewrite(question, table)
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"entities":             table,
					"generalized_question": generalized,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), generalized)
			return nil
		},
	}
}

func renderCmd(opts *rootOptions) *cobra.Command {
	var entitiesPath string

	cmd := &cobra.Command{
		Use:   "render SKELETON",
		Short: "Expand the macros of a SQL skeleton against an entity table",
		Long: "Expand the macros of a SQL skeleton against an entity table.\n" +
			"The table is read from --entities, as printed by 'nlqctl detect --json'. Use - for stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readEntities(cmd.InOrStdin(), entitiesPath)
			if err != nil {
				return err
			}

			a, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rendered, err := a.Pipeline.Render(args[0], table)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"rendered_sql": rendered})
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entitiesPath, "entities", "e", "", "Entity table JSON file, or - for stdin")
	return cmd
}

func askCmd(opts *rootOptions) *cobra.Command {
	var (
		execute bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Run the whole pipeline and optionally execute the SQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			a, _, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Pipeline.Run(ctx, question, false)
			if err != nil {
				return err
			}
			if execute {
				if result.Result, err = a.Pipeline.Execute(ctx, result.RenderedSQL, limit); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, result)
			}

			label := color.New(color.Bold).SprintFunc()
			fmt.Fprintf(out, "%s %s\n", label("Question:   "), highlight(question, result.Entities))
			fmt.Fprintf(out, "%s %s\n", label("Generalized:"), result.GeneralizedQuestion)
			fmt.Fprintf(out, "%s %s\n", label("Skeleton:   "), result.SQLSkeleton)
			fmt.Fprintf(out, "%s\n%s\n", label("SQL:"), result.RenderedSQL)
			if result.Result != nil {
				fmt.Fprintln(out)
				printRows(out, result.Result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&execute, "execute", "x", false, "Run the rendered SQL on the configured datasource")
	cmd.Flags().IntVar(&limit, "limit", 0, "Row limit; 0 uses the configured default")
	return cmd
}

func adaptersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the datasource types this build supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapters := datasource.RegisteredAdapters()
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), adapters)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, info := range adapters {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Type, info.DisplayName, info.Description)
			}
			return w.Flush()
		},
	}
}

func printEntities(out io.Writer, table models.EntityTable) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLACEHOLDER\tTEXT\tQUERY ARG\tOPTIONS")
	for _, category := range table.Categories() {
		for _, e := range table[category] {
			codes := make([]string, 0, len(e.Options))
			for _, o := range e.Options {
				codes = append(codes, o.Code)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				colorFor(category).Sprint(e.Placeholder), e.Text, e.QueryArg, strings.Join(codes, ","))
		}
	}
	_ = w.Flush()
}

func printRows(out io.Writer, result *datasource.QueryExecutionResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	names := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))
	for _, row := range result.Rows {
		values := make([]string, len(names))
		for i, name := range names {
			values[i] = fmt.Sprint(row[name])
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "(%d rows)\n", result.RowCount)
}

func readEntities(stdin io.Reader, path string) (models.EntityTable, error) {
	if path == "" {
		return nil, fmt.Errorf("--entities is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}

	var table models.EntityTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}
	for _, category := range table.Categories() {
		if !category.IsKnown() {
			return nil, fmt.Errorf("unknown category %q", category)
		}
	}
	if table.HasNil() {
		return nil, fmt.Errorf("entities must not be null")
	}
	return table, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
