package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/classify"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <franchisee name>",
	Short: "Show how a franchisee name is classified and planned",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		out := classifyName(strings.Join(args, " "), state)

		return writeIndentedJSON(os.Stdout, out)
	},
}

func init() {
	classifyCmd.Flags().String("state", "", "two-letter state used to pick the confidence threshold")
	rootCmd.AddCommand(classifyCmd)
}

type classifyOutput struct {
	Name           string               `json:"name"`
	Classification model.Classification `json:"classification"`
	Strategy       model.Strategy       `json:"strategy"`
}

// classifyName runs the classifier and planner the engine would use.
func classifyName(name, state string) classifyOutput {
	policy := strategy.DefaultPolicy()
	if cfg != nil {
		dq := cfg.DataQuality
		policy.DefaultThreshold = dq.DefaultThreshold
		policy.RichRegistryThreshold = dq.RichRegistryThreshold
		policy.RichRegistryStates = dq.RichRegistryStates
		policy.Enabled = cfg.SourceEnabled
	}

	c := classify.Classify(name)
	return classifyOutput{
		Name:           name,
		Classification: c,
		Strategy:       strategy.NewPlanner(policy).Plan(c, model.Record{Franchisee: name, State: state}),
	}
}
