// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package enqueue

import (
	"encoding/base64"
	"fmt"
)

// Encoding is how message text is written to the queue.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingNone   Encoding = "none"
)

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingBase64, "":
		return EncodingBase64, nil
	case EncodingNone:
		return EncodingNone, nil
	default:
		return "", fmt.Errorf("unknown message encoding %q", s)
	}
}

// Encode returns the text as it will be stored on the queue.
func (e Encoding) Encode(message string) string {
	if e == EncodingNone {
		return message
	}
	return base64.StdEncoding.EncodeToString([]byte(message))
}
