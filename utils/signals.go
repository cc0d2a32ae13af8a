/*************************************************************************
 * Copyright 2019 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package utils holds small OS-facing helpers shared by catsupervisord's
// entry point, starting with the quit-signal plumbing spec.md §5's
// cancellation model depends on.
package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// GetQuitChannel registers and returns a channel notified on SIGHUP,
// SIGINT, SIGQUIT or SIGTERM, the control loop's cancellation signals
// per spec.md §5.
func GetQuitChannel() chan os.Signal {
	quitSig := make(chan os.Signal, 1)
	signal.Notify(quitSig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return quitSig
}
