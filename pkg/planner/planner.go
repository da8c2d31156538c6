/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package planner groups a slave's registers into the fewest contiguous
// holding-register reads that respect the per-request register limit.
package planner

import (
	"sort"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/carverauto/modbus-poller/pkg/modbus"
)

// Entry is one register placed in protocol address space.
type Entry struct {
	Register models.Register
	Address  uint16
	Length   uint16
}

// Range is one physical read covering one or more entries.
type Range struct {
	Start    uint16
	Quantity uint16
	Entries  []Entry
}

// End is the last address covered by r.
func (r Range) End() int {
	return int(r.Start) + int(r.Quantity) - 1
}

// Offset is the word index of e within the words returned for r.
func (r Range) Offset(e Entry) int {
	return int(e.Address) - int(r.Start)
}

// Planner coalesces register entries into ranges.
type Planner struct {
	maxQuantity int
	logger      logger.Logger
}

type Option func(*Planner)

// WithMaxQuantity lowers the registers-per-read limit for devices that cannot
// serve the protocol maximum. Values outside 1..125 are ignored.
func WithMaxQuantity(n int) Option {
	return func(p *Planner) {
		if n > 0 && n <= modbus.MaxQuantity {
			p.maxQuantity = n
		}
	}
}

func New(log logger.Logger, opts ...Option) *Planner {
	p := &Planner{maxQuantity: modbus.MaxQuantity, logger: log}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// MaxQuantity returns the effective registers-per-read limit.
func (p *Planner) MaxQuantity() int {
	return p.maxQuantity
}

// Plan normalizes the registers of one slave and returns ranges in ascending
// address order, entries sharing an address ordered by register id. An empty input yields no ranges.
func (p *Planner) Plan(registers []models.Register, mode models.Addressing) []Range {
	entries := p.entries(registers, mode)
	if len(entries) == 0 {
		return nil
	}

	// equal addresses fall back to register id
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Address != entries[j].Address {
			return entries[i].Address < entries[j].Address
		}

		return entries[i].Register.ID < entries[j].Register.ID
	})

	return p.coalesce(entries)
}

func (p *Planner) entries(registers []models.Register, mode models.Addressing) []Entry {
	entries := make([]Entry, 0, len(registers))

	for i := range registers {
		reg := registers[i]

		addr := Normalize(reg.Address, mode)
		if addr < 0 || addr > maxProtocolAddress {
			p.logger.Warn().
				Str("register_id", reg.ID).
				Int("address", reg.Address).
				Int("normalized", addr).
				Str("addressing", string(mode)).
				Msg("Dropping register outside the protocol address space")

			continue
		}

		length := reg.WordLength()
		if length > p.maxQuantity {
			p.logger.Debug().
				Str("register_id", reg.ID).
				Int("length", length).
				Int("max", p.maxQuantity).
				Msg("Clamping register length to the per-request maximum")

			length = p.maxQuantity
		}

		if addr+length-1 > maxProtocolAddress {
			length = maxProtocolAddress - addr + 1
		}

		entries = append(entries, Entry{
			Register: reg,
			Address:  uint16(addr),
			Length:   uint16(length),
		})
	}

	return entries
}

func (p *Planner) coalesce(entries []Entry) []Range {
	var (
		ranges []Range
		cur    Range
		curEnd int
	)

	flush := func() {
		cur.Quantity = uint16(curEnd - int(cur.Start) + 1)
		ranges = append(ranges, cur)
	}

	for i, e := range entries {
		end := int(e.Address) + int(e.Length) - 1

		if i > 0 && int(e.Address) <= curEnd+1 {
			merged := max(curEnd, end)

			if merged-int(cur.Start)+1 <= p.maxQuantity {
				curEnd = merged
				cur.Entries = append(cur.Entries, e)

				continue
			}
		}

		if i > 0 {
			flush()
		}

		cur = Range{Start: e.Address, Entries: []Entry{e}}
		curEnd = end
	}

	flush()

	return ranges
}
