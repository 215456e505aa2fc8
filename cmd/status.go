package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/gradascent/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL    string
	statusCancel bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.
With --cancel the job is cancelled instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&statusCancel, "cancel", false, "Cancel the given job")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/{id}/status.
type jobStatus struct {
	server.Job
	Elapsed        float64 `json:"elapsed"`
	StepsPerSecond float64 `json:"stepsPerSecond"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		if statusCancel {
			return fmt.Errorf("--cancel needs a job id")
		}
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	if statusCancel {
		return cancelJob(out, fmt.Sprintf("%s/api/v1/jobs/%s", serverURL, jobID), jobID)
	}
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(out io.Writer, url string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Objective: %s (dim %d)\n", job.Config.Objective, job.Config.Dim)
		fmt.Fprintf(out, "  Mode: %s\n", job.Config.Mode)
		fmt.Fprintf(out, "  Step: %d / %d\n", job.Step, job.Config.Steps)
		if job.Point != nil {
			fmt.Fprintf(out, "  f(p): %.6f -> %.6f\n", job.InitialValue, job.Value)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Objective: %s\n", cfg.Objective)
	fmt.Fprintf(out, "  Dimension: %d\n", cfg.Dim)
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Mode)
	fmt.Fprintf(out, "  Learning rate: %g\n", cfg.LearningRate)
	fmt.Fprintf(out, "  Steps: %d\n", cfg.Steps)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Step: %d\n", status.Step)
	if status.Point != nil {
		fmt.Fprintf(out, "  Point: %s\n", formatPoint(status.Point))
		fmt.Fprintf(out, "  Initial f(p): %.6f\n", status.InitialValue)
		fmt.Fprintf(out, "  Current f(p): %.6f\n", status.Value)
		fmt.Fprintf(out, "  Improvement: %.6f\n", status.Value-status.InitialValue)
	}
	if cfg.Mode == "dynamic" {
		fmt.Fprintf(out, "  Strategy: %s (%d switches)\n", status.Strategy, status.Transitions)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.StepsPerSecond > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f steps/sec\n", status.StepsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}

func cancelJob(out io.Writer, url, jobID string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(out, "Cancellation requested for job %s\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
}
