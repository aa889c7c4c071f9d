package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-tailor/internal/observability"
	"github.com/jonathan/resume-tailor/internal/server"
	"github.com/jonathan/resume-tailor/internal/types"
)

var (
	serverURL    string
	apiToken     string
	jobFile      string
	jobURL       string
	jobTitle     string
	resumeFile   string
	contentMode  string
	waitForTask  bool
	pollInterval time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job posting and résumé for tailoring",
	Long: `Submit a job posting (text file or URL) with a JSON Resume document.
Without --resume-file the task is created as a placeholder for a later attach.`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status TASK_ID...",
	Short: "Show the status of tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStatus,
}

func init() {
	for _, cmd := range []*cobra.Command{submitCmd, statusCmd} {
		cmd.Flags().StringVar(&serverURL, "server", envOr("TAILOR_SERVER_URL", "http://localhost:8080"), "Server base URL")
		cmd.Flags().StringVar(&apiToken, "token", os.Getenv("TAILOR_API_TOKEN"), "Bearer token for protected routes")
	}

	submitCmd.Flags().StringVarP(&jobFile, "job-file", "j", "", "Path to text file containing job posting")
	submitCmd.Flags().StringVarP(&jobURL, "url", "u", "", "URL of the job posting")
	submitCmd.Flags().StringVar(&jobTitle, "title", "", "Job title")
	submitCmd.Flags().StringVarP(&resumeFile, "resume-file", "r", "", "Path to JSON Resume document")
	submitCmd.Flags().StringVarP(&contentMode, "mode", "m", string(types.ModeResume), "Content mode: resume, experiences or summary")
	submitCmd.Flags().BoolVarP(&waitForTask, "wait", "w", false, "Wait for the task to finish")
	submitCmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "Polling interval with --wait")

	rootCmd.AddCommand(submitCmd, statusCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildSubmitRequest reads the job and résumé files into a request body.
func buildSubmitRequest(jobFile, jobURL, title, resumeFile, mode string) (server.SubmitRequest, error) {
	if jobFile == "" && jobURL == "" {
		return server.SubmitRequest{}, fmt.Errorf("either --job-file or --url must be provided")
	}
	if !types.ContentMode(mode).Valid() {
		return server.SubmitRequest{}, fmt.Errorf("invalid --mode %q", mode)
	}

	req := server.SubmitRequest{
		Job:         server.JobInput{Title: title, Link: jobURL},
		ContentMode: mode,
	}
	if jobFile != "" {
		text, err := os.ReadFile(jobFile)
		if err != nil {
			return req, fmt.Errorf("failed to read job file: %w", err)
		}
		req.Job.Text = string(text)
	}
	if resumeFile != "" {
		content, err := os.ReadFile(resumeFile)
		if err != nil {
			return req, fmt.Errorf("failed to read resume file: %w", err)
		}
		if !json.Valid(content) {
			return req, fmt.Errorf("resume file %s is not valid JSON", resumeFile)
		}
		req.Resume = &server.ResumeInput{Content: content}
	}
	return req, nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	req, err := buildSubmitRequest(jobFile, jobURL, jobTitle, resumeFile, contentMode)
	if err != nil {
		return err
	}

	client := newAPIClient(serverURL, apiToken)
	ctx := cmd.Context()

	id, err := client.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted task %s\n", id)
	if !waitForTask {
		return nil
	}

	views, err := client.Wait(ctx, []string{id}, pollInterval)
	if err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if len(views) == 1 && views[0] != nil {
		if job, err := client.Job(ctx, views[0].JobID); err == nil {
			printer.PrintParsedJob(job)
		}
		printer.PrintTask(views[0])
		if views[0].Status == types.TaskStatusFailed {
			return fmt.Errorf("task %s failed", id)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, apiToken)
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	views, err := client.Status(ctx, args)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if len(args) == 1 {
		if len(views) == 1 && views[0] != nil {
			printer.PrintTask(views[0])
			return nil
		}
	}
	printer.PrintTasks(args, views)
	return nil
}
