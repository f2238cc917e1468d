package sysmon

import (
	"fmt"
	"strings"
)

const tableHeader = "    PID   CPU%   MEM MB  STATUS  COMMAND"

// FormatTable renders processes as display lines. Lines longer than width are
// cut; width <= 0 leaves them whole.
func FormatTable(processes []*ProcessInfo, width int) []string {
	lines := make([]string, 0, len(processes)+1)
	lines = append(lines, truncate(tableHeader, width))
	for _, p := range processes {
		command := p.Cmdline
		if command == "" {
			command = "[" + p.Name + "]"
		}
		line := fmt.Sprintf("%7d %6.1f %8.1f  %-6s  %s", p.PID, p.CPUPercent, p.MemoryMB, p.Status, command)
		lines = append(lines, truncate(line, width))
	}
	return lines
}

func truncate(line string, width int) string {
	if width <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	if width == 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:width-1]), " ") + "…"
}
