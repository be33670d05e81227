package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skillforge/skillforge/pkg/presenter"
	"github.com/skillforge/skillforge/pkg/skills"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available skills",
	Long:  `List all available skills with their ids, names, and descriptions. Only skill metadata is read; instruction bodies stay on disk unless --verbose is given.`,
	Run: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		listSkillsCmd(cmd, verbose)
	},
}

func init() {
	listCmd.Flags().BoolP("verbose", "v", false, "Also load each skill's body and show a content preview")
}

func listSkillsCmd(cmd *cobra.Command, verbose bool) {
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

	for _, unit := range registry.Malformed() {
		presenter.Warning(fmt.Sprintf("Skipped malformed skill: %s", unit.Error()))
	}

	descriptors := registry.Descriptors()
	if len(descriptors) == 0 {
		presenter.Info("No skills found")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	fmt.Fprintln(tw, "--\t----\t-----------")

	for _, desc := range descriptors {
		description := desc.Description
		if len(description) > 60 {
			description = description[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", desc.ID, desc.Name, description)
	}
	tw.Flush()

	if !verbose {
		return
	}

	loader := skills.NewLoader()
	for _, desc := range descriptors {
		body, err := loader.LoadBody(desc)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load skill %q", desc.ID))
			continue
		}

		presenter.Separator()
		presenter.Section(desc.Name)
		preview := body.Instructions
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		presenter.Info(preview)
		for _, res := range body.Resources {
			presenter.Info(fmt.Sprintf("  resource: %s (%s)", res.Path, res.Kind))
		}
	}
}
