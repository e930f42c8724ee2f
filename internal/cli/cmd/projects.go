package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"slipway/internal/cli/client"
	"slipway/pkg/api"
)

func NewProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		Run:   runProjects,
	}
}

func runProjects(cmd *cobra.Command, args []string) {
	resp, err := client.SendRequest(http.MethodGet, "/api/projects", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var projects []api.ProjectBrief
	if err := client.ParseResponse(resp, &projects); err != nil {
		fmt.Printf("List failed: %v\n", err)
		return
	}

	for _, project := range projects {
		kind := ""
		if project.Utility {
			kind = " (utility)"
		}
		fmt.Printf("%-20s %s%s\n", project.Slug, project.Repo, kind)
	}
}
