// Package ctxt holds the process-wide compute device used by sortcore.
// It is the "device context" component of SPEC_FULL.md §2: acquiring
// a compute device once, and exposing its queue and feature probe to
// every sorter constructed afterwards.
package ctxt

import (
	"errors"
	"strings"

	"github.com/kestrelgfx/splatsort/compute"
)

var (
	drv    compute.Driver
	gpu    compute.GPU
	limits compute.Limits
)

var errNoDriver = errors.New("ctxt: driver not found")

// Load attempts to open any registered driver whose name contains the
// given substring. It is case-sensitive. If name is the empty string,
// all registered drivers are considered. On success it replaces the
// package's driver, GPU and limits; on failure the previous values
// (if any) are left untouched.
func Load(name string) error {
	drivers := compute.Drivers()
	err := errNoDriver
	for i := range drivers {
		if !strings.Contains(drivers[i].Name(), name) {
			continue
		}
		var u compute.GPU
		if u, err = drivers[i].Open(); err != nil {
			continue
		}
		drv = drivers[i]
		gpu = u
		limits = gpu.Limits()
		return nil
	}
	return err
}

// Driver returns the currently loaded compute.Driver, or nil if none
// has been loaded yet.
func Driver() compute.Driver { return drv }

// GPU returns the currently loaded compute.GPU, or nil if none has
// been loaded yet.
func GPU() compute.GPU { return gpu }

// Limits returns the Limits of the context's GPU. This value is
// cached at Load time and must not be modified by the caller.
func Limits() *compute.Limits { return &limits }
