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

package planner

import "github.com/carverauto/modbus-poller/pkg/models"

const (
	fiveDigitHoldingBase = 40001
	maxProtocolAddress   = 65535
)

// ResolveAddressing turns AddressingAuto (or an empty value) into a concrete
// convention: five-digit when any configured address is >= 40001, otherwise
// one-based. Explicit conventions are returned unchanged.
func ResolveAddressing(mode models.Addressing, addresses []int) models.Addressing {
	switch mode {
	case models.AddressingFiveDigit, models.AddressingOneBased, models.AddressingZeroBased:
		return mode
	case models.AddressingAuto:
	default:
	}

	for _, a := range addresses {
		if a >= fiveDigitHoldingBase {
			return models.AddressingFiveDigit
		}
	}

	return models.AddressingOneBased
}

// Normalize maps a configured address to a zero-based protocol address. The
// result may fall outside 0..65535; callers drop such entries.
func Normalize(address int, mode models.Addressing) int {
	switch mode {
	case models.AddressingZeroBased:
		return address
	case models.AddressingFiveDigit:
		if address >= fiveDigitHoldingBase {
			return address - fiveDigitHoldingBase
		}

		return address - 1
	case models.AddressingOneBased, models.AddressingAuto:
		return address - 1
	default:
		return address - 1
	}
}
