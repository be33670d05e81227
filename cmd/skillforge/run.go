package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillforge/skillforge/pkg/match"
	"github.com/skillforge/skillforge/pkg/presenter"
	"github.com/skillforge/skillforge/pkg/skills"
)

type RunConfig struct {
	Skill      string
	Input      string
	Execute    bool
	SearchType string
}

func NewRunConfig() *RunConfig {
	return &RunConfig{
		Skill:      "",
		Input:      "",
		Execute:    false,
		SearchType: string(match.SearchAll),
	}
}

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run a query through the skills pipeline",
	Long: `Run a free-text query: match it against the skill registry, load the
selected skill's instructions, and optionally execute its bundled code in the
sandbox.

Examples:
  skillforge run "calculate the factorial of a number"
  skillforge run "factorial" --execute --input '{"n": 5}'
  skillforge run "anything" --skill factorial-calculator --execute --input '{"n": 5}'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getRunConfigFromFlags(cmd)
		runQueryCmd(cmd.Context(), args[0], config)
	},
}

func init() {
	defaults := NewRunConfig()
	runCmd.Flags().StringP("skill", "s", defaults.Skill, "Force use of a specific skill id (skips matching)")
	runCmd.Flags().StringP("input", "i", defaults.Input, "JSON inputs for skill code execution")
	runCmd.Flags().BoolP("execute", "x", defaults.Execute, "Execute the skill's script resource in the sandbox")
	runCmd.Flags().StringP("search-type", "t", defaults.SearchType, "Baseline match target: name, description, or all")
}

func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	config := NewRunConfig()
	if skill, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = skill
	}
	if input, err := cmd.Flags().GetString("input"); err == nil {
		config.Input = input
	}
	if execute, err := cmd.Flags().GetBool("execute"); err == nil {
		config.Execute = execute
	}
	if searchType, err := cmd.Flags().GetString("search-type"); err == nil {
		config.SearchType = searchType
	}
	return config
}

func runQueryCmd(ctx context.Context, query string, config *RunConfig) {
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

	desc, ok := selectSkill(ctx, registry, query, config)
	if !ok {
		presenter.Warning("No suitable skill found for this query")
		listAvailable(registry)
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("Selected skill: %s", desc.ID))

	loader := skills.NewLoader()
	body, err := loader.LoadBody(desc)
	if err != nil {
		presenter.Error(err, "Failed to load skill instructions")
		os.Exit(1)
	}

	presenter.Separator()
	presenter.Section(desc.Name)
	presenter.Info(body.Instructions)
	presenter.Separator()

	if !config.Execute {
		return
	}

	script, ok := body.ScriptResource()
	if !ok {
		presenter.Warning(fmt.Sprintf("Skill %q declares no script resource; nothing to execute", desc.ID))
		return
	}

	outputs, err := executeScript(ctx, loader, script, config.Input)
	if err != nil {
		presenter.Error(err, "Skill execution failed")
		os.Exit(1)
	}

	rendered, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to render outputs")
		os.Exit(1)
	}
	presenter.Section("Result")
	presenter.Info(string(rendered))
}

// selectSkill resolves the query to a single descriptor, either forced via
// --skill or through the matcher. Runner-up candidates are reported, not
// treated as an error.
func selectSkill(ctx context.Context, registry *skills.Registry, query string, config *RunConfig) (skills.Descriptor, bool) {
	if config.Skill != "" {
		desc, ok := registry.Get(config.Skill)
		if !ok {
			presenter.Error(errors.Errorf("skill %q is not registered", config.Skill), "Skill not found")
			listAvailable(registry)
			os.Exit(1)
		}
		return desc, true
	}

	var opts []match.Option
	if viper.GetBool("ranker.enabled") {
		opts = append(opts, match.WithRanker(match.NewAnthropicRanker(viper.GetString("ranker.model"))))
	}
	matcher := match.NewMatcher(opts...)

	matches, err := matcher.Match(ctx, query, registry.Descriptors(), match.SearchType(config.SearchType))
	if err != nil {
		presenter.Error(err, "Failed to match query")
		os.Exit(1)
	}
	if len(matches) == 0 {
		return skills.Descriptor{}, false
	}
	if len(matches) > 1 {
		runnersUp := make([]string, 0, len(matches)-1)
		for _, m := range matches[1:] {
			runnersUp = append(runnersUp, m.ID)
		}
		presenter.Info(fmt.Sprintf("Other candidates: %v", runnersUp))
	}
	return matches[0], true
}

// executeScript dereferences the script resource and runs it in the sandbox.
func executeScript(ctx context.Context, loader *skills.Loader, script skills.Resource, rawInput string) (map[string]any, error) {
	code, err := loader.LoadResource(script)
	if err != nil {
		return nil, err
	}

	inputs := map[string]any{}
	if rawInput != "" {
		if err := json.Unmarshal([]byte(rawInput), &inputs); err != nil {
			return nil, errors.Wrap(err, "invalid --input json")
		}
	}

	executor, err := newExecutor()
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, string(code), inputs)
}

func listAvailable(registry *skills.Registry) {
	descriptors := registry.Descriptors()
	if len(descriptors) == 0 {
		return
	}
	presenter.Info("\nAvailable skills:")
	for _, desc := range descriptors {
		presenter.Info(fmt.Sprintf("  • %s: %s", desc.ID, desc.Description))
	}
}
