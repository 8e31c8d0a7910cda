package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries a running rkfit server for fit jobs.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobSummary is the subset of a server job shown by status.
type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Order  *int   `json:"order"`
		Method string `json:"method"`
	} `json:"config"`
	Cost       float64 `json:"cost"`
	Iterations int     `json:"iterations"`
	Samples    int     `json:"samples"`
}

type jobStatus struct {
	ID            string  `json:"id"`
	State         string  `json:"state"`
	Cost          float64 `json:"cost"`
	InitialCost   float64 `json:"initialCost"`
	RMS           float64 `json:"rms"`
	Iterations    int     `json:"iterations"`
	MaxIterations int     `json:"maxIterations"`
	Elapsed       float64 `json:"elapsed"`
	Error         string  `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	if len(args) == 0 {
		var jobs []jobSummary
		if err := getJSON(base+"/api/v1/fits", &jobs); err != nil {
			return err
		}
		printJobList(cmd.OutOrStdout(), jobs)
		return nil
	}

	var status jobStatus
	if err := getJSON(base+"/api/v1/fits/"+url.PathEscape(args[0])+"/status", &status); err != nil {
		return err
	}
	printJobStatus(cmd.OutOrStdout(), status)
	return nil
}

func getJSON(u string, v any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJobList(out io.Writer, jobs []jobSummary) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tORDER\tMETHOD\tSAMPLES\tITERATIONS\tCOST")
	for _, job := range jobs {
		order := "-"
		if job.Config.Order != nil {
			order = fmt.Sprint(*job.Config.Order)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.6g\n",
			job.ID, job.State, order, job.Config.Method, job.Samples, job.Iterations, job.Cost)
	}
	w.Flush()
}

func printJobStatus(out io.Writer, s jobStatus) {
	fmt.Fprintf(out, "Job: %s\n", s.ID)
	fmt.Fprintf(out, "State: %s\n", s.State)
	fmt.Fprintf(out, "Iterations: %d/%d\n", s.Iterations, s.MaxIterations)
	if s.InitialCost > 0 {
		fmt.Fprintf(out, "Initial Cost: %g\n", s.InitialCost)
		fmt.Fprintf(out, "Cost: %g (%.1f%% of initial)\n", s.Cost, 100*s.Cost/s.InitialCost)
	}
	if s.RMS > 0 {
		fmt.Fprintf(out, "RMS: %g J/mol\n", s.RMS)
	}
	elapsed := time.Duration(s.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", s.Error)
	}
}
