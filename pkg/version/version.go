// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package version

var version = "0.2.0"

// GetVersion returns the build version.
func GetVersion() string {
	return version
}
