package server

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"judged/internal/judge/model"
)

// CollectStatus samples host health for the ping operation. Values
// are recomputed on every probe so schedulers see live numbers.
func CollectStatus(version string) (model.ServerStatus, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return model.ServerStatus{
		Action:   "pong",
		Hostname: hostname,
		CPU:      cpuLoadPercent(),
		CPUCore:  runtime.NumCPU(),
		Memory:   memoryUsedPercent(),
		Version:  version,
	}, nil
}

// cpuLoadPercent approximates CPU utilization from the one-minute
// load average relative to core count.
func cpuLoadPercent() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	pct := load / float64(runtime.NumCPU()) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func memoryUsedPercent() float64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	var total, available float64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		val, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = val
		case "MemAvailable:":
			available = val
		}
	}
	if total <= 0 {
		return 0
	}
	return (total - available) / total * 100
}
