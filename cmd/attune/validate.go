package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"veridian-hq/attune/pkg/policy/source"
)

var validateFlags struct {
	policies string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy file or directory",
	Long: `Validate policy YAML without starting the server.

Checks document structure, operator and aggregate names, action ranges,
and duplicate policy ids across files.

Examples:
  attune validate --policies policies.yaml
  attune validate --policies /etc/attune/policies/`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.policies, "policies", "p", "", "policy file or directory (required)")
	validateCmd.MarkFlagRequired("policies")
}

func runValidate(cmd *cobra.Command, args []string) error {
	src, err := source.NewFileSource(source.FileSourceConfig{Path: validateFlags.policies}, nil)
	if err != nil {
		return err
	}

	policies, err := src.Load(context.Background())
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("valid: %d policies\n", len(policies))
	for _, p := range policies {
		scope := p.Service
		if scope == "" {
			scope = "*"
		}
		env := p.Environment
		if env == "" {
			env = "*"
		}
		fmt.Printf("  %-30s priority=%-4d scope=%s/%s conditions=%d\n",
			p.ID, p.Priority, scope, env, len(p.Conditions))
	}
	return nil
}
