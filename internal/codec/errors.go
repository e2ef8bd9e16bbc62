// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import "errors"

var errShortCompressedPayload = errors.New("codec: compressed record payload shorter than the 4-byte inflated-size prefix")
