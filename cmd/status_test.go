package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/fits/abc/status":
			w.Write([]byte(`{"id":"abc","state":"running","cost":2,"initialCost":8,"iterations":3,"maxIterations":100,"elapsed":1.5}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"job not found"}`))
		}
	}))
	defer srv.Close()

	var s jobStatus
	require.NoError(t, getJSON(srv.URL+"/api/v1/fits/abc/status", &s))
	assert.Equal(t, "running", s.State)
	assert.Equal(t, 100, s.MaxIterations)

	err := getJSON(srv.URL+"/api/v1/fits/nope/status", &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestPrintJobStatus(t *testing.T) {
	var out bytes.Buffer
	printJobStatus(&out, jobStatus{
		ID: "abc", State: "failed", Cost: 2, InitialCost: 8,
		Iterations: 3, MaxIterations: 100, Elapsed: 1.5, Error: "boom",
	})

	got := out.String()
	assert.Contains(t, got, "Iterations: 3/100")
	assert.Contains(t, got, "25.0% of initial")
	assert.Contains(t, got, "Elapsed: 1.5s")
	assert.Contains(t, got, "Error: boom")
}

func TestPrintJobList(t *testing.T) {
	var out bytes.Buffer
	printJobList(&out, nil)
	assert.Equal(t, "No jobs found\n", out.String())

	order := 2
	jobs := []jobSummary{{ID: "a", State: "completed", Iterations: 7}, {ID: "b", State: "pending"}}
	jobs[0].Config.Order = &order
	jobs[0].Config.Method = "lm"

	out.Reset()
	printJobList(&out, jobs)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"a", "completed", "2", "lm", "0", "7", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, "-", strings.Fields(lines[2])[2])
}
