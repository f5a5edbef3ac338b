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
	var url string

	if len(args) == 0 {
		// List all jobs
		url = fmt.Sprintf("%s/api/v1/jobs", serverURL)
		return listJobs(url)
	} else {
		// Get specific job status
		jobID := args[0]
		url = fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID)
		return getJobStatus(url, jobID)
	}
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		fmt.Printf("  Iterations: %v\n", job["iterations"])
		if length, ok := job["bestLength"].(float64); ok && length > 0 {
			fmt.Printf("  Best Length: %.4f\n", length)
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
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

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	config, _ := status["config"].(map[string]interface{})
	fmt.Println("Configuration:")
	if cities, ok := config["cities"].([]interface{}); ok {
		fmt.Printf("  Cities: %d\n", len(cities))
	} else {
		fmt.Printf("  Cities: %s\n", config["citiesPath"])
	}
	fmt.Printf("  Ants: %v\n", config["ants"])
	fmt.Printf("  Iterations: %v\n", config["iterations"])
	fmt.Printf("  Alpha/Beta/Rho: %v / %v / %v\n", config["alpha"], config["beta"], config["evaporation"])
	if tour, ok := config["tour"].(string); ok && tour != "" {
		fmt.Printf("  Tour: %s\n", tour)
	}
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Iterations: %v", status["iterations"])
	if progress, ok := status["progress"].(float64); ok {
		fmt.Printf(" (%.1f%%)", progress*100)
	}
	fmt.Println()
	if resumed, ok := status["resumedFrom"].(float64); ok && resumed > 0 {
		fmt.Printf("  Resumed From: %.0f\n", resumed)
	}
	if length, ok := status["bestLength"].(float64); ok && length > 0 {
		fmt.Printf("  Best Length: %.6f\n", length)
	}

	if status["elapsed"] != nil {
		elapsed := time.Duration(status["elapsed"].(float64) * float64(time.Second))
		fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if rate, ok := status["iterationsPerSecond"].(float64); ok && rate > 0 {
		fmt.Printf("  Throughput: %.1f iterations/sec\n", rate)
	}
	if converged, ok := status["converged"].(bool); ok && converged {
		fmt.Println("  Converged early")
	}

	if msg, ok := status["error"].(string); ok && msg != "" {
		fmt.Printf("\nError: %s\n", status["error"])
	}

	return nil
}
