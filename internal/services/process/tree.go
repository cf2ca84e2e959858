package process

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// descendants returns every descendant of pid, deepest first, so that a
// kill pass never lets a child be reparented before it is reached.
func descendants(ctx context.Context, pid int32) []*process.Process {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil
	}
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return nil
	}

	var all []*process.Process
	for _, child := range children {
		all = append(all, descendants(ctx, child.Pid)...)
		all = append(all, child)
	}
	return all
}
