// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the shared entrypoint error handling for apx
// binaries.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors returned from run(), where the structured logger
// may not exist yet.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
