package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// procSupervisor answers reclamation requests by checking the process table.
// It does not signal anything; the real supervisor replaces it in production.
type procSupervisor struct {
	root   string
	logger *zap.Logger
}

func newProcSupervisor(root string, logger *zap.Logger) *procSupervisor {
	return &procSupervisor{root: root, logger: logger}
}

func (s *procSupervisor) alive(pid int) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, strconv.Itoa(pid)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *procSupervisor) RequestTrimSignal(_ context.Context, pid int, level reclaim.TrimLevel) (bool, error) {
	ok, err := s.alive(pid)
	if ok {
		s.logger.Debug("Trim requested", zap.Int("pid", pid), zap.Stringer("level", level))
	}
	return ok, err
}

func (s *procSupervisor) RequestGC(_ context.Context, pid int) (bool, error) {
	ok, err := s.alive(pid)
	if ok {
		s.logger.Debug("GC requested", zap.Int("pid", pid))
	}
	return ok, err
}

func (s *procSupervisor) RequestCompaction(_ context.Context, pid int, level reclaim.CompactLevel) error {
	s.logger.Debug("Compaction requested", zap.Int("pid", pid), zap.String("level", string(level)))
	return nil
}

func (s *procSupervisor) SetSchedGroup(_ context.Context, pid int, group reclaim.SchedGroup) error {
	s.logger.Debug("Scheduling group change", zap.Int("pid", pid), zap.String("group", string(group)))
	return nil
}

// staticResolver manages every package except the ignored ones
type staticResolver struct {
	launchers map[string]bool
	ignored   map[string]bool
}

func newStaticResolver(launchers, ignored []string) *staticResolver {
	r := &staticResolver{
		launchers: make(map[string]bool, len(launchers)),
		ignored:   make(map[string]bool, len(ignored)),
	}
	for _, p := range launchers {
		r.launchers[p] = true
	}
	for _, p := range ignored {
		r.ignored[p] = true
	}
	return r
}

func (r *staticResolver) IsExemptLauncherPackage(pkg string) bool {
	return r.launchers[pkg]
}

func (r *staticResolver) ResolvePackageMetadata(_ context.Context, userID int, pkg string) (*types.PackageMetadata, error) {
	if r.ignored[pkg] {
		return nil, nil
	}
	return &types.PackageMetadata{UserID: userID, Package: pkg}, nil
}
