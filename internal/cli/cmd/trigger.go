package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"slipway/internal/cli/client"
	"slipway/pkg/api"
)

// NewTriggerCommand creates the trigger command
func NewTriggerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a job for a project commit",
		Run:   runTrigger,
	}

	cmd.Flags().StringP("project", "j", "", "Project slug (required)")
	cmd.Flags().StringP("commit", "c", "", "40-character commit sha (required)")
	cmd.Flags().StringP("tag", "t", "", "Version tag for the build")
	cmd.Flags().StringP("branch", "b", "", "Branch the commit sits on")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("commit")

	return cmd
}

func runTrigger(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	commit, _ := cmd.Flags().GetString("commit")
	tag, _ := cmd.Flags().GetString("tag")
	branch, _ := cmd.Flags().GetString("branch")

	jsonData, err := json.Marshal(api.TriggerRequest{
		Commit: commit,
		Tag:    tag,
		Branch: branch,
	})
	if err != nil {
		fmt.Printf("Error: Failed to serialize data - %v\n", err)
		return
	}

	resp, err := client.SendRequest(http.MethodPost,
		"/api/projects/"+project+"/jobs", bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var job api.JobBrief
	if err := client.ParseResponse(resp, &job); err != nil {
		fmt.Printf("Trigger failed: %v\n", err)
		return
	}

	fmt.Printf("Queued job %s for %s@%s\n", job.Slug, project, commit[:12])
}
