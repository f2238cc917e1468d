package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chessdolls/internal/assembler"
	"chessdolls/internal/sysmon"
	"chessdolls/pkg/outputlog"
)

type builtin func(d *Dispatcher, args []string, sink assembler.Sink) Outcome

var builtins map[string]builtin

var builtinHelp = map[string]string{
	"cd":      "cd [dir]             change the directory commands run in (default $HOME)",
	"clear":   "clear                empty the output pane",
	"exit":    "exit                 leave the shell",
	"help":    "help                 show this list",
	"history": "history              list the commands of this session",
	"ps":      "ps [-s column] [query]  list your processes, sorted by cpu, memory, io, pid or name",
}

func init() {
	builtins = map[string]builtin{
		"cd":      builtinCd,
		"clear":   builtinClear,
		"exit":    builtinExit,
		"help":    builtinHelpList,
		"history": builtinHistory,
		"ps":      builtinPs,
	}
}

// IsBuiltin reports whether name is handled without spawning a process.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func builtinClear(*Dispatcher, []string, assembler.Sink) Outcome {
	return Outcome{Clear: true}
}

func builtinExit(*Dispatcher, []string, assembler.Sink) Outcome {
	return Outcome{Status: StatusExiting, Quit: true}
}

func builtinHelpList(_ *Dispatcher, _ []string, sink assembler.Sink) Outcome {
	names := make([]string, 0, len(builtinHelp))
	for name := range builtinHelp {
		names = append(names, name)
	}
	sort.Strings(names)

	sink.AppendLine(outputlog.Stdout, "Built-in commands:")
	for _, name := range names {
		sink.AppendLine(outputlog.Stdout, "  "+builtinHelp[name])
	}
	sink.AppendLine(outputlog.Stdout, "Anything else runs as an external command.")
	return Outcome{}
}

func builtinHistory(d *Dispatcher, _ []string, sink assembler.Sink) Outcome {
	for i, entry := range d.history.Entries() {
		sink.AppendLine(outputlog.Stdout, fmt.Sprintf("%5d  %s", i+1, entry))
	}
	return Outcome{}
}

func builtinCd(d *Dispatcher, args []string, _ assembler.Sink) Outcome {
	if len(args) > 1 {
		return Outcome{Err: fmt.Errorf("cd: too many arguments")}
	}

	home, homeErr := os.UserHomeDir()
	var target string
	switch {
	case len(args) == 0 || args[0] == "~":
		if homeErr != nil {
			return Outcome{Err: fmt.Errorf("cd: failed to find home directory: %w", homeErr)}
		}
		target = home
	case strings.HasPrefix(args[0], "~/") && homeErr == nil:
		target = filepath.Join(home, args[0][2:])
	case filepath.IsAbs(args[0]):
		target = args[0]
	default:
		base := d.exec.Dir()
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return Outcome{Err: fmt.Errorf("cd: failed to get working directory: %w", err)}
			}
			base = wd
		}
		target = filepath.Join(base, args[0])
	}

	if err := d.exec.SetDir(filepath.Clean(target)); err != nil {
		return Outcome{Err: fmt.Errorf("cd: %w", err)}
	}
	d.logger.Debug("Changed directory", "dir", target)
	return Outcome{}
}

func builtinPs(d *Dispatcher, args []string, sink assembler.Sink) Outcome {
	column := sysmon.SortByCPU
	var query []string
	for i := 0; i < len(args); i++ {
		if args[i] != "-s" {
			query = append(query, args[i])
			continue
		}
		if i+1 == len(args) {
			return Outcome{Err: fmt.Errorf("ps: -s needs a column")}
		}
		parsed, err := sysmon.ParseSortColumn(args[i+1])
		if err != nil {
			return Outcome{Err: fmt.Errorf("ps: %w", err)}
		}
		column = parsed
		i++
	}

	processes, err := d.processes()
	if err != nil {
		return Outcome{Err: fmt.Errorf("ps: %w", err)}
	}
	processes = sysmon.FilterProcesses(processes, strings.Join(query, " "))

	order := sysmon.SortDesc
	if column == sysmon.SortByPID || column == sysmon.SortByName {
		order = sysmon.SortAsc
	}
	sysmon.SortProcesses(processes, column, order)

	for _, line := range sysmon.FormatTable(processes, d.width()) {
		sink.AppendLine(outputlog.Stdout, line)
	}
	return Outcome{}
}
