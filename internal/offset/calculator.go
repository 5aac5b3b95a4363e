// Package offset turns an averaged measurement into a signed tool-offset
// correction in controller units.
package offset

import (
	"math"

	"github.com/boxboy523/inzi/internal/types"
)

// Correction computes the correction for one tool profile from its most
// recent averaged measurement:
//
//	correction = (basicSize − avg + manualOffset) × offsetRate
//
// The result is in millimetres. The second return value is false when the
// profile has no average yet or is inactive; inactive profiles keep
// receiving measurements but never produce a correction, so an operator can
// park one of a machine's paired tools without losing the other's stream.
func Correction(p *types.ToolProfile) (float64, bool) {
	if p.LastAvg == nil || !p.Active {
		return 0, false
	}
	return (p.BasicSize - *p.LastAvg + p.ManualOffset) * p.OffsetRate, true
}

// ToControllerUnits scales a millimetre correction to the controller's
// fixed-point unit (ten-thousandths) and rounds half away from zero.
func ToControllerUnits(correction float64) int32 {
	return int32(math.Round(correction * types.OffsetScale))
}
