package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/compositor"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
)

type expandOptions struct {
	include  []string
	exclude  []string
	top      int
	k        int
	set      []string
	template bool
	format   string
}

func newExpandCmd(global *globalOptions) *cobra.Command {
	var opts expandOptions

	cmd := &cobra.Command{
		Use:   "expand <query>",
		Short: "Expand a query and print the result",
		Long: `Expand a query with the configured modules.

Per-module parameters are passed with --set <module>.<param>=<value>,
for example --set spell.distance=2 or --set syn.k=3.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.include, "include", "i", nil, "Only use these module ids")
	cmd.Flags().StringSliceVarP(&opts.exclude, "exclude", "x", nil, "Skip these module ids")
	cmd.Flags().IntVar(&opts.top, "top", 0, "Keep at most this many alternatives per term (0 = configured)")
	cmd.Flags().IntVar(&opts.k, "k", 0, "Suggestions per module (0 = module default)")
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "Module override <module>.<param>=<value> (repeatable)")
	cmd.Flags().BoolVar(&opts.template, "template", false, "Print the query expansion template instead of the query")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runExpand(cmd *cobra.Command, global *globalOptions, q string, opts expandOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}
	ov, err := buildOverrides(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, reg, err := loadRegistry(ctx, global)
	if err != nil {
		return err
	}
	d := dispatcher.New(dispatcher.ConfigFrom(cfg.Expansion), nil, nil)
	svc := expander.New(reg, d)

	eq, err := svc.ExpandQuery(ctx, expander.Request{
		Query:     q,
		Include:   opts.include,
		Exclude:   opts.exclude,
		Overrides: ov,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(eq)
	}
	printExpansion(out, eq, opts.template)
	return nil
}

func buildOverrides(opts expandOptions) (dispatcher.Overrides, error) {
	if opts.top < 0 || opts.k < 0 {
		return dispatcher.Overrides{}, fmt.Errorf("--top and --k must not be negative")
	}
	ov := dispatcher.Overrides{TopN: opts.top, K: opts.k}
	for _, kv := range opts.set {
		key, val, ok := strings.Cut(kv, "=")
		id, param, dotted := strings.Cut(key, ".")
		if !ok || !dotted || id == "" || param == "" {
			return ov, fmt.Errorf("invalid --set %q (want <module>.<param>=<value>)", kv)
		}
		if ov.Modules == nil {
			ov.Modules = make(map[string]module.Options)
		}
		mo := ov.Modules[id]
		if param == "k" {
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return ov, fmt.Errorf("invalid --set %q: k must be a non-negative integer", kv)
			}
			mo.K = n
		} else {
			if mo.Params == nil {
				mo.Params = make(map[string]string)
			}
			mo.Params[param] = val
		}
		ov.Modules[id] = mo
	}
	return ov, nil
}

func printExpansion(w io.Writer, eq *compositor.ExpandedQuery, templateOnly bool) {
	if templateOnly {
		fmt.Fprintln(w, eq.Template)
		return
	}
	fmt.Fprintln(w, eq.Query)
	for _, r := range eq.Results {
		if len(r.Expansions) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s", r.Term)
		if r.Field != "" {
			fmt.Fprintf(w, " (field %s)", r.Field)
		}
		fmt.Fprintln(w)
		for _, e := range r.Expansions {
			sources := make([]string, len(e.Sources))
			for i, s := range e.Sources {
				sources[i] = fmt.Sprintf("%s#%d %.4g", s.Module, s.Rank, s.Score)
			}
			fmt.Fprintf(w, "  %-24s %s\n", e.Text, strings.Join(sources, ", "))
		}
	}
	for _, d := range eq.Diagnostics {
		fmt.Fprintf(w, "\nwarning: module %s failed for %q: %s\n", d.Module, d.Term, d.Error)
	}
}
