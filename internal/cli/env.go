// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"os"
	"strings"
)

// EnvArgs returns icewire arguments from the environment. They are
// parsed before the command line arguments, so the command line wins.
func EnvArgs() []string {
	return strings.Fields(os.Getenv("ICEWIRE_ARGS"))
}
