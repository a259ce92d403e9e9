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

package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var defaultFlake *FlakeGenerator

func init() {
	var err error
	defaultFlake, err = newFlakeGenerator()
	if err != nil {
		panic(err)
	}
}

// FlakeGenerator hands out roughly time-ordered 63-bit IDs.
type FlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator() (*FlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &FlakeGenerator{sf: sf}, nil
}

// NextID falls back to a random positive value when the clock runs out.
func (g *FlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		u := uuid.New()
		return int64(binary.BigEndian.Uint64(u[:8]) >> 1)
	}
	return int64(v)
}

func (g *FlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]))
}

// InstanceID identifies this process in logs and telemetry.
func InstanceID() string {
	return defaultFlake.NextBase32ID()
}

// InvocationID identifies one handled event when the event carries no id.
func InvocationID() string {
	return uuid.NewString()
}
