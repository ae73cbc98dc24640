package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"media-tracker/internal/models"
	"media-tracker/internal/repository"
	"media-tracker/internal/service"
)

func newListsCommand(ctx *commandContext) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show the lists owned by a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner = strings.TrimSpace(owner)
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			lists, err := service.NewListService(repository.NewListRepository(db), nil, nil).
				GetUserLists(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if len(lists) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No lists for %s\n", owner)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderLists(lists))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Pseudo of the list owner")
	return cmd
}

func renderLists(lists []models.List) string {
	rows := make([][]string, 0, len(lists))
	for _, l := range lists {
		protected := ""
		if l.Protected() {
			protected = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			l.Name,
			protected,
			l.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Name", "Protected", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}
