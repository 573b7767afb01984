package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/ruleset"
	"github.com/lemonberrylabs/rulekit/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse EXPRESSION",
	Short: "Parse one expression and print its AST as JSON",
	Long: `Parse one expression and print its AST as JSON.

Pass "-" to read the expression from stdin. Field type hints may be declared
with repeated --field flags, e.g. --field age=float --field name=string.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringArray("field", nil, "Field type hint as name=type")
	parseCmd.Flags().Bool("debug", false, "Trace tokenization at debug level")
}

func runParse(cmd *cobra.Command, args []string) error {
	text := args[0]
	if text == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	hints := make(map[string]types.Type)
	fieldFlags, _ := cmd.Flags().GetStringArray("field")
	for _, f := range fieldFlags {
		name, typeName, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("invalid --field %q, want name=type", f)
		}
		t, valid := types.Parse(typeName)
		if !valid {
			return fmt.Errorf("field %q: unknown type %q", name, typeName)
		}
		hints[name] = t
	}

	var opts []expr.Option
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		opts = append(opts, expr.WithDebugLogger(logger))
	}

	ctx := ruleset.NewFieldContext(hints)
	stmt, err := expr.New(opts...).Parse(text, ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"ast":        stmt,
		"symbols":    ctx.Symbols(),
		"resultType": stmt.Expression.Type().String(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
