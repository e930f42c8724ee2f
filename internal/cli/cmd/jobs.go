package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"slipway/internal/cli/client"
	"slipway/pkg/api"
)

func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent jobs for a project",
		Run:   runJobs,
	}

	cmd.Flags().StringP("project", "j", "", "Project slug (required)")
	cmd.Flags().StringP("job", "s", "", "Job slug for detail view")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runJobs(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	jobSlug, _ := cmd.Flags().GetString("job")

	if jobSlug != "" {
		showJobDetail(project, jobSlug)
		return
	}

	resp, err := client.SendRequest(http.MethodGet,
		"/api/projects/"+project+"/jobs", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var jobs []api.JobBrief
	if err := client.ParseResponse(resp, &jobs); err != nil {
		fmt.Printf("List failed: %v\n", err)
		return
	}
	for _, job := range jobs {
		ref := job.Branch
		if job.Tag != "" {
			ref = job.Tag
		}
		fmt.Printf("%s  %-8s %-12s %s\n",
			job.Slug, job.State, ref, job.Commit[:12])
	}
}

func showJobDetail(project, jobSlug string) {
	resp, err := client.SendRequest(http.MethodGet,
		"/api/projects/"+project+"/jobs/"+jobSlug, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var detail api.JobDetail
	if err := client.ParseResponse(resp, &detail); err != nil {
		fmt.Printf("Detail failed: %v\n", err)
		return
	}

	fmt.Printf("Job %s (%s)\n", detail.Slug, detail.State)
	fmt.Printf("  commit: %s\n", detail.Commit)
	if detail.Tag != "" {
		fmt.Printf("  tag:    %s\n", detail.Tag)
	}
	if detail.Branch != "" {
		fmt.Printf("  branch: %s\n", detail.Branch)
	}
	if detail.DockerHost != "" {
		fmt.Printf("  docker: %s\n", detail.DockerHost)
	}
	fmt.Println("  stages:")
	for _, stage := range detail.Stages {
		outcome := "running"
		if stage.ReturnCode != nil {
			outcome = fmt.Sprintf("rc=%d", *stage.ReturnCode)
		}
		fmt.Printf("    %-24s %s\n", stage.Slug, outcome)
	}
}
