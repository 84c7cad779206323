// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package botvisor

// Provider is what service providers must implement.  Except for the
// naming methods, the Manager promises not to call these methods
// concurrently, so implementers need not worry about locking against
// the Manager itself.  Applications should use Service, not Provider.
type Provider interface {
	// Name returns the name of the provider, such as "web" or "bot".
	// A variant may be appended after a colon, for example
	// "storage:postgres".  Either form satisfies a dependency on the
	// base name "storage".  Names may include alphanumerics and the
	// underscore; the colon is the only other punctuation permitted.
	Name() string

	// Description is a short human readable description.  Keep it to
	// about 32 characters to avoid truncation in the UI.
	Description() string

	// Provides returns additional service names that this offers.  The
	// Name is implicitly included.
	Provides() []string

	// Depends returns names that must be satisfied by running services
	// before this one can run.
	Depends() []string

	// Conflicts returns names that may not be enabled at the same time
	// as this one.  The service itself is excluded when checking.
	Conflicts() []string

	// Start attempts to start the service.  It blocks until the service
	// has started or has definitively failed.
	Start() error

	// Stop stops the service, blocking until complete.  It cannot fail.
	Stop()

	// Check performs a health check.  It returns nil if the service
	// is healthy, or an error describing the fault.
	Check() error

	// Property returns the value of a property.
	Property(PropertyName) (interface{}, error)

	// SetProperty sets the value of a property.
	SetProperty(PropertyName, interface{}) error
}

// Releaser is implemented by providers whose work can outlive the
// Manager.  Release detaches from the work without stopping it; the
// Manager calls it at shutdown for services that do not stop on exit.
type Releaser interface {
	Release()
}
