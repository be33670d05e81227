package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skillforge/skillforge/pkg/presenter"
	"github.com/skillforge/skillforge/pkg/skills"
)

var execCmd = &cobra.Command{
	Use:   "exec <skill-id>",
	Short: "Execute a skill's script resource directly",
	Long: `Execute a skill's script resource in the sandbox, bypassing matching.

Examples:
  skillforge exec factorial-calculator --input '{"n": 5}'
  skillforge exec data-statistician --input '{"numbers": [1, 2, 3]}'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input, _ := cmd.Flags().GetString("input")
		execSkillCmd(cmd, args[0], input)
	},
}

func init() {
	execCmd.Flags().StringP("input", "i", "", "JSON inputs for the skill code")
}

func execSkillCmd(cmd *cobra.Command, id, rawInput string) {
	ctx := cmd.Context()

	store, err := newStore()
	if err != nil {
		presenter.Error(err, "Failed to initialize skill store")
		os.Exit(1)
	}

	registry, err := store.Build(ctx)
	if err != nil {
		presenter.Error(err, "Failed to build skill registry")
		os.Exit(1)
	}

	desc, ok := registry.Get(id)
	if !ok {
		presenter.Error(errors.Errorf("skill %q is not registered", id), "Skill not found")
		listAvailable(registry)
		os.Exit(1)
	}

	loader := skills.NewLoader()
	body, err := loader.LoadBody(desc)
	if err != nil {
		presenter.Error(err, "Failed to load skill body")
		os.Exit(1)
	}

	script, ok := body.ScriptResource()
	if !ok {
		presenter.Error(errors.Errorf("skill %q declares no script resource", id), "Nothing to execute")
		os.Exit(1)
	}

	outputs, err := executeScript(ctx, loader, script, rawInput)
	if err != nil {
		presenter.Error(err, "Skill execution failed")
		os.Exit(1)
	}

	rendered, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to render outputs")
		os.Exit(1)
	}
	fmt.Println(string(rendered))
}
