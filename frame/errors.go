// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

package frame

import "errors"

var (
	// ErrTextTooLong reports that the text payload passed to Encode exceeds
	// the one-byte length field (255 bytes).
	ErrTextTooLong = errors.New("frame: text exceeds 255 bytes")
)
