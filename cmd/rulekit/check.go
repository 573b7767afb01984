package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/ruleset"
)

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Compile rule files and report errors without serving",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	parser := expr.New()
	failed := 0

	for _, path := range args {
		rs, err := ruleset.Load(path, parser)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s\n%v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%d rules)\n", path, len(rs.Rules))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
	}
	return nil
}
