/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

package main

import (
	"os"

	"github.com/kais-io/cellmesh/cmd/cellmeshctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
