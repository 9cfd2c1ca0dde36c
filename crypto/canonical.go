// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonicalize takes raw JSON bytes and returns a deterministic byte-level
// normalization: object keys sorted lexicographically at every depth,
// insignificant whitespace removed. Every signature in this system is
// computed over the output of Canonicalize, never over a caller's raw
// bytes and never over a plain json.Marshal of a Go value. Wire
// reformatting must never change what a signature covers.
//
// encoding/json.Marshal already sorts map keys recursively when marshaling
// map[string]interface{}; decoding with UseNumber preserves the original
// numeric literal shape so re-encoding doesn't perturb numbers.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: encode: %w", err)
	}

	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}
