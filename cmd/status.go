package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(stdout(cmd), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(stdout(cmd), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// jobSummary is the subset of a job the status command prints.
type jobSummary struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Case     int     `json:"case"`
	Cases    int     `json:"cases"`
	CaseName string  `json:"caseName"`
	Query    int     `json:"query"`
	Queries  int     `json:"queries"`
	Checks   int     `json:"checks"`
	Failed   int     `json:"failed"`
	Elapsed  float64 `json:"elapsed"`
	Rate     float64 `json:"checksPerSecond"`
	Error    string  `json:"error"`
	Config   struct {
		Name   string `json:"name"`
		Kernel string `json:"kernel"`
	} `json:"config"`
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(w io.Writer, url string) error {
	var jobs []jobSummary
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  Name: %s\n", job.Config.Name)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Cases: %d/%d\n", min(job.Case, job.Cases), job.Cases)
		if job.Checks > 0 {
			fmt.Fprintf(w, "  Checks: %d (%d failed)\n", job.Checks, job.Failed)
		}
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status jobSummary
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Name: %s\n", status.Config.Name)
	if status.Config.Kernel != "" {
		fmt.Fprintf(w, "  Kernel: %s\n", status.Config.Kernel)
	}
	fmt.Fprintf(w, "  Scenarios: %d\n", status.Cases)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	if status.CaseName != "" && status.State == "running" {
		fmt.Fprintf(w, "  Case: %s (%d/%d), query %d/%d\n", status.CaseName, status.Case+1, status.Cases, status.Query, status.Queries)
	}
	fmt.Fprintf(w, "  Checks: %d (%d failed)\n", status.Checks, status.Failed)

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.Rate > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f checks/sec\n", status.Rate)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
