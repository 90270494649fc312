// Package report defines the JSON session file written by cmd/prodcons and
// read back by cmd/buildGraph.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoCondQueue/internal/workload"
)

// RunResult holds the outcome of one producer/consumer run.
type RunResult struct {
	Implementation string            `json:"implementation"`
	Capacity       int               `json:"capacity"`
	Iterations     int               `json:"iterations"`
	ProducerDelays []string          `json:"producer_delays"`
	ConsumerDelays []string          `json:"consumer_delays"`
	NumProduced    int               `json:"num_produced"`
	NumConsumed    int               `json:"num_consumed"`
	FullWaits      uint64            `json:"full_waits"`
	EmptyWaits     uint64            `json:"empty_waits"`
	InOrder        bool              `json:"in_order"`
	Elapsed        string            `json:"elapsed"` // measured time
	Timestamp      int64             `json:"timestamp"`
	GoVersion      string            `json:"go_version"`
	Samples        []workload.Sample `json:"samples,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU      int     `json:"num_cpu"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH      string  `json:"go_arch"`
	TotalMemory uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete session.
type FullReport struct {
	SessionTime string      `json:"session_time"`
	SystemInfo  SystemInfo  `json:"system_info"`
	Runs        []RunResult `json:"runs"`
}

// GatherSystemInfo collects basic CPU and memory details. Fields gopsutil
// cannot read on this platform are left empty.
func GatherSystemInfo() SystemInfo {
	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      runtime.NumCPU(),
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      runtime.GOARCH,
		TotalMemory: totalMemory,
	}
}

// Load reads every session stored in filename.
func Load(filename string) ([]FullReport, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", filename)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", filename)
	}
	return sessions, nil
}

// Append adds session to filename, creating the file if it does not exist.
func Append(filename string, session FullReport) error {
	var previous []FullReport
	if _, err := os.Stat(filename); err == nil {
		previous, err = Load(filename)
		if err != nil {
			return err
		}
	}
	updated := append(previous, session)
	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	return nil
}

// Last returns the most recent session.
func Last(sessions []FullReport) (FullReport, error) {
	if len(sessions) == 0 {
		return FullReport{}, errors.New("no sessions found")
	}
	return sessions[len(sessions)-1], nil
}

// WriteMarkdownTable renders the runs of session as a Markdown table.
func WriteMarkdownTable(w io.Writer, session FullReport) {
	fmt.Fprintf(w, "## Session %s\n\n", session.SessionTime)
	fmt.Fprintln(w, "| Implementation | Capacity | Producer delays | Consumer delays | Produced | Consumed | Full waits | Empty waits | In order | Elapsed |")
	fmt.Fprintln(w, "|----------------|---------:|-----------------|-----------------|---------:|---------:|-----------:|------------:|----------|---------|")
	for _, r := range session.Runs {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %d | %d | %d | %d | %t | %s |\n",
			r.Implementation, r.Capacity,
			strings.Join(r.ProducerDelays, ", "), strings.Join(r.ConsumerDelays, ", "),
			r.NumProduced, r.NumConsumed, r.FullWaits, r.EmptyWaits, r.InOrder, r.Elapsed)
	}
}
