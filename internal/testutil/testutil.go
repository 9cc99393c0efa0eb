// Package testutil provides mocks and fixtures for engine tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// DefaultUID is the uid fixtures are created with
const DefaultUID = 10100

// MockSupervisor is a mock implementation of reclaim.Supervisor
type MockSupervisor struct {
	mock.Mock
}

// RequestTrimSignal mocks the RequestTrimSignal method
func (m *MockSupervisor) RequestTrimSignal(ctx context.Context, pid int, level reclaim.TrimLevel) (bool, error) {
	args := m.Called(ctx, pid, level)
	return args.Bool(0), args.Error(1)
}

// RequestGC mocks the RequestGC method
func (m *MockSupervisor) RequestGC(ctx context.Context, pid int) (bool, error) {
	args := m.Called(ctx, pid)
	return args.Bool(0), args.Error(1)
}

// RequestCompaction mocks the RequestCompaction method
func (m *MockSupervisor) RequestCompaction(ctx context.Context, pid int, level reclaim.CompactLevel) error {
	args := m.Called(ctx, pid, level)
	return args.Error(0)
}

// SetSchedGroup mocks the SetSchedGroup method
func (m *MockSupervisor) SetSchedGroup(ctx context.Context, pid int, group reclaim.SchedGroup) error {
	args := m.Called(ctx, pid, group)
	return args.Error(0)
}

// NewMockSupervisor creates a supervisor mock on which every call succeeds
func NewMockSupervisor(t *testing.T) *MockSupervisor {
	t.Helper()
	m := new(MockSupervisor)

	m.On("RequestTrimSignal", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	m.On("RequestGC", mock.Anything, mock.Anything).Return(true, nil).Maybe()
	m.On("RequestCompaction", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetSchedGroup", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return m
}

// MockResolver is a mock implementation of packages.Resolver
type MockResolver struct {
	mock.Mock
}

// IsExemptLauncherPackage mocks the IsExemptLauncherPackage method
func (m *MockResolver) IsExemptLauncherPackage(pkg string) bool {
	args := m.Called(pkg)
	return args.Bool(0)
}

// ResolvePackageMetadata mocks the ResolvePackageMetadata method
func (m *MockResolver) ResolvePackageMetadata(ctx context.Context, userID int, pkg string) (*types.PackageMetadata, error) {
	args := m.Called(ctx, userID, pkg)
	if fn, ok := args.Get(0).(func(context.Context, int, string) *types.PackageMetadata); ok {
		return fn(ctx, userID, pkg), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PackageMetadata), args.Error(1)
}

// NewMockResolver creates a resolver mock that knows every package and
// treats launcher as the exempt launcher
func NewMockResolver(t *testing.T, launcher string) *MockResolver {
	t.Helper()
	m := new(MockResolver)

	m.On("IsExemptLauncherPackage", launcher).Return(true).Maybe()
	m.On("IsExemptLauncherPackage", mock.Anything).Return(false).Maybe()
	m.On("ResolvePackageMetadata", mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, userID int, pkg string) *types.PackageMetadata {
			return CreatePackageMetadata(userID, pkg)
		}, nil).
		Maybe()

	return m
}

// CreatePackageMetadata creates metadata for a regular user package
func CreatePackageMetadata(userID int, pkg string) *types.PackageMetadata {
	return &types.PackageMetadata{
		UserID:  userID,
		Package: pkg,
		UID:     userID*100000 + DefaultUID,
	}
}

// CreateMainProcess creates the main process report of pkg for user 0
func CreateMainProcess(pid int, pkg string) types.ProcessInfo {
	return types.ProcessInfo{PID: pid, UID: DefaultUID, Package: pkg, Name: pkg}
}

// CreateAuxProcess creates an auxiliary process report of pkg for user 0
func CreateAuxProcess(pid int, pkg, suffix string) types.ProcessInfo {
	return types.ProcessInfo{PID: pid, UID: DefaultUID, Package: pkg, Name: pkg + ":" + suffix}
}

// Gained creates a visibility-gained event for user 0
func Gained(pkg, component string) types.VisibilityEvent {
	return types.VisibilityEvent{Kind: types.VisibilityGained, Package: pkg, Component: component}
}

// Lost creates a visibility-lost event for user 0
func Lost(pkg, component string) types.VisibilityEvent {
	return types.VisibilityEvent{Kind: types.VisibilityLost, Package: pkg, Component: component}
}
