// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

//go:build linux

package serialio

import (
	"errors"
	"syscall"
)

// isTimeout reports whether err is the poll timeout goserial returns when
// no bytes arrive within the configured read deadline.
func isTimeout(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ETIMEDOUT)
}
