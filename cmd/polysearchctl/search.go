package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysearch/internal/render"
	"github.com/alanyoungcy/polysearch/internal/service"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query...>",
		Short: "Resolve a free-text query against the open markets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearchCommand,
	}
}

func runSearchCommand(cmd *cobra.Command, args []string) error {
	stack, _, err := loadStack(cmd)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	result, err := stack.Search.Resolve(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("%s: %w", service.UserMessage(err), err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), render.Text(result))
	return err
}
