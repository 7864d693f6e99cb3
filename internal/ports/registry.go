package ports

import (
	"github.com/threadline-io/threadline/internal/domain"
)

// Registration pairs a worker implementation with its immutable
// descriptor.
type Registration struct {
	Worker     WorkerPort
	Descriptor domain.WorkerDescriptor
}

type WorkerRegistry interface {
	Register(id string, worker WorkerPort, descriptor domain.WorkerDescriptor) error
	Unregister(id string) error

	// Lookup fails with WorkerNotFoundError when absent and
	// WorkerUnhealthyError when the health monitor reports the worker
	// down.
	Lookup(id string) (*Registration, error)

	QueryByCapability(capability string) []domain.WorkerDescriptor
	QueryByWorkflow(tag string) []domain.WorkerDescriptor
	List() []string
	Count() int

	// ValidateDependencies checks every registered worker's declared
	// dependency list for presence and health. It reports rather than
	// fails; callers decide policy.
	ValidateDependencies() domain.DependencyReport

	Stats() domain.RegistryStats
}
