// Package procs reads the process table through gopsutil.
package procs

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// Table lists running processes and controls them.
type Table struct{}

// NewTable creates a gopsutil-backed process table.
func NewTable() *Table {
	return &Table{}
}

// PIDs returns the running process IDs in ascending order.
func (t *Table) PIDs(ctx context.Context) ([]int, error) {
	raw, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}
	pids := make([]int, 0, len(raw))
	for _, p := range raw {
		pids = append(pids, int(p))
	}
	sort.Ints(pids)
	return pids, nil
}

// Name returns the process name for pid.
func (t *Table) Name(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Name()
}

// Terminate asks pid to exit with SIGTERM.
func (t *Table) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminate %d: %w", pid, err)
	}
	return nil
}
