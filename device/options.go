package device

import (
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultPollTimeout is the longest Poll waits for submitted work before
// reporting ErrTimeout.
const DefaultPollTimeout = 30 * time.Second

// InstanceCreator is the entry point of a HAL backend (vulkan, noop, ...).
type InstanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// AdapterPreference selects which enumerated adapter New opens.
type AdapterPreference int

const (
	// PreferHardware picks the first discrete or integrated GPU and falls
	// back to the first adapter.
	PreferHardware AdapterPreference = iota
	// PreferFirst opens the first adapter the backend reports.
	PreferFirst
)

// String returns the preference name.
func (p AdapterPreference) String() string {
	switch p {
	case PreferHardware:
		return "hardware"
	case PreferFirst:
		return "first"
	default:
		return "unknown"
	}
}

// Option configures a Context during creation.
//
// Example:
//
//	ctx, err := device.New(context.Background(),
//		device.WithPollTimeout(5*time.Second),
//		device.WithLabel("trainer"),
//	)
type Option func(*options)

// options holds optional configuration for Context creation.
type options struct {
	backend     gputypes.Backend
	creator     InstanceCreator
	limits      gputypes.Limits
	pollTimeout time.Duration
	preference  AdapterPreference
	label       string
}

// defaultOptions returns the default context options.
func defaultOptions() options {
	return options{
		backend:     gputypes.BackendVulkan,
		limits:      gputypes.DefaultLimits(),
		pollTimeout: DefaultPollTimeout,
		preference:  PreferHardware,
		label:       "gpumath",
	}
}

// WithBackend selects a registered HAL backend by identifier.
// The default is Vulkan.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithInstanceCreator uses the given HAL backend directly instead of looking
// one up in the registry. Tests pass the noop backend here.
func WithInstanceCreator(c InstanceCreator) Option {
	return func(o *options) {
		o.creator = c
	}
}

// WithLimits overrides the device limits requested when opening the adapter.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithPollTimeout sets how long Poll waits for the GPU. Non-positive values
// keep the default.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithAdapterPreference selects how an adapter is picked.
func WithAdapterPreference(p AdapterPreference) Option {
	return func(o *options) {
		o.preference = p
	}
}

// WithLabel sets the debug label used for the fence and in log records.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}
