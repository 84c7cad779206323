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

// Property names.  Internal names will all start with an underscore.
// Other, provider specific names, may be supplied.  Note that there is
// no provision for property discovery.  Consumers wishing to use a property
// must know the property name and type.
type PropertyName string

const (
	PropLogger      PropertyName = "_Logger"      // Where logs get sent
	PropRestart     PropertyName = "_Restart"     // Auto-restart on failure
	PropRateLimit   PropertyName = "_RateLimit"   // Max starts per period
	PropRatePeriod  PropertyName = "_RatePeriod"  // Period for RateLimit
	PropName        PropertyName = "_Name"        // Service name
	PropDescription PropertyName = "_Description" // Service description
	PropDepends     PropertyName = "_Depends"     // Dependencies list
	PropConflicts   PropertyName = "_Conflicts"   // Conflicts list
	PropProvides    PropertyName = "_Provides"    // Provides list
	PropNotify      PropertyName = "_Notify"      // Notification callback
	PropAutoStart   PropertyName = "_AutoStart"   // Enable at daemon start
	PropStopOnExit  PropertyName = "_StopOnExit"  // Stop on daemon shutdown
)
