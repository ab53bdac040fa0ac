/*
Copyright © 2025 the habmap authors.
This file is part of habmap.

habmap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

habmap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with habmap.  If not, see <http://www.gnu.org/licenses/>.
*/

package habmap

import (
	"fmt"
	"math"
)

// ScalingFactor returns the smallest power of ten that is strictly
// greater than max, so that a*scale+b is unique for every b <= max.
func ScalingFactor(max int64) (int64, error) {
	if max < 0 {
		return 0, &ConfigurationError{Reason: fmt.Sprintf("maximum code %d is negative", max)}
	}
	scale := int64(1)
	for scale <= max {
		if scale > math.MaxInt64/10 {
			return 0, &ConfigurationError{Reason: fmt.Sprintf("no power of ten above %d fits in 64 bits", max)}
		}
		scale *= 10
	}
	return scale, nil
}

// StageScale computes the scaling factor for combining a classification
// with attribute layer b under the given rules. Both the largest code in
// b and the largest code B named by the rules must be below the scale.
// It returns a *ConfigurationError if neither defines a maximum.
func StageScale(b *Raster, rules *RuleTable) (int64, error) {
	max, ok := b.Max()
	if rules != nil {
		for _, row := range rules.Rows {
			if !ok || row.CodeB > max {
				max, ok = row.CodeB, true
			}
		}
	}
	if !ok {
		return 0, &ConfigurationError{Reason: "attribute layer holds no valid codes and the rules name none"}
	}
	return ScalingFactor(max)
}

// checkRange returns a *ConfigurationError if the composite of maxA and a
// code below scale can overflow int64.
func checkRange(maxA, scale int64) error {
	if maxA < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("negative classification code %d", maxA)}
	}
	if maxA > (math.MaxInt64-(scale-1))/scale {
		return &ConfigurationError{Reason: fmt.Sprintf("composite of code %d with scale %d overflows", maxA, scale)}
	}
	return nil
}

// Encode returns the composite code of a and b. b must be below scale.
func Encode(a, b, scale int64) int64 { return a*scale + b }

// Decode splits a composite code back into its two parts.
func Decode(code, scale int64) (a, b int64) { return code / scale, code % scale }
