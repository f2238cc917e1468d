package sysmon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo represents a system process with metrics
type ProcessInfo struct {
	PID           int32
	Name          string
	Cmdline       string
	Username      string
	CPUPercent    float64
	MemoryMB      float64 // RSS in MB
	MemoryPercent float32
	IOReadMB      float64 // Cumulative
	IOWriteMB     float64 // Cumulative
	CreateTime    time.Time
	Status        string
	PPID          int32
	NumThreads    int32
}

// SortColumn defines available sort options
type SortColumn string

const (
	SortByCPU    SortColumn = "cpu"
	SortByMemory SortColumn = "memory"
	SortByIO     SortColumn = "io"
	SortByPID    SortColumn = "pid"
	SortByName   SortColumn = "name"
)

// SortOrder defines sort direction
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortColumn validates a column name given by the user.
func ParseSortColumn(s string) (SortColumn, error) {
	switch column := SortColumn(strings.ToLower(s)); column {
	case SortByCPU, SortByMemory, SortByIO, SortByPID, SortByName:
		return column, nil
	default:
		return "", fmt.Errorf("unknown sort column %q (want cpu, memory, io, pid or name)", s)
	}
}

// GetUserProcesses returns all processes owned by the specified UID
func GetUserProcesses(uid uint32) ([]*ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to get processes: %w", err)
	}

	var userProcesses []*ProcessInfo
	for _, p := range procs {
		uids, err := p.Uids()
		if err != nil || len(uids) == 0 || uint32(uids[0]) != uid {
			continue
		}
		userProcesses = append(userProcesses, fetchProcessInfo(p))
	}

	return userProcesses, nil
}

// fetchProcessInfo collects what is readable; short-lived processes may
// vanish between calls, leaving zero values.
func fetchProcessInfo(p *process.Process) *ProcessInfo {
	info := &ProcessInfo{
		PID: p.Pid,
	}

	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if username, err := p.Username(); err == nil {
		info.Username = username
	}
	if cpuPercent, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpuPercent
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		info.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}
	if memPercent, err := p.MemoryPercent(); err == nil {
		info.MemoryPercent = memPercent
	}
	if ioCounters, err := p.IOCounters(); err == nil {
		info.IOReadMB = float64(ioCounters.ReadBytes) / 1024 / 1024
		info.IOWriteMB = float64(ioCounters.WriteBytes) / 1024 / 1024
	}
	if createTime, err := p.CreateTime(); err == nil {
		info.CreateTime = time.Unix(0, createTime*int64(time.Millisecond))
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		info.Status = status[0]
	}
	if ppid, err := p.Ppid(); err == nil {
		info.PPID = ppid
	}
	if numThreads, err := p.NumThreads(); err == nil {
		info.NumThreads = numThreads
	}

	return info
}

// SortProcesses sorts the process list by the specified column and order
func SortProcesses(processes []*ProcessInfo, column SortColumn, order SortOrder) {
	sort.SliceStable(processes, func(i, j int) bool {
		a, b := processes[i], processes[j]
		if order == SortDesc {
			a, b = b, a
		}

		switch column {
		case SortByMemory:
			return a.MemoryMB < b.MemoryMB
		case SortByIO:
			return a.IOReadMB+a.IOWriteMB < b.IOReadMB+b.IOWriteMB
		case SortByPID:
			return a.PID < b.PID
		case SortByName:
			return a.Name < b.Name
		default:
			return a.CPUPercent < b.CPUPercent
		}
	})
}

// FilterProcesses keeps the processes whose name or command line contains
// every word of query, case-insensitively.
func FilterProcesses(processes []*ProcessInfo, query string) []*ProcessInfo {
	if strings.TrimSpace(query) == "" {
		return processes
	}
	var matched []*ProcessInfo
	for _, p := range processes {
		if matchesSearch(p.Name+" "+p.Cmdline, query) {
			matched = append(matched, p)
		}
	}
	return matched
}

func matchesSearch(text, query string) bool {
	text = strings.ToLower(text)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(text, word) {
			return false
		}
	}
	return true
}
