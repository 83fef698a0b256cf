// Dose escalation: when recent peaks feel weak relative to the preferred dose,
// the person seeks a larger one. Where they seek it follows a small state
// machine that only ever moves toward illicit supply.
package agents

import (
	"fmt"

	"github.com/talgya/vou/internal/drugs"
	"github.com/talgya/vou/internal/entropy"
)

// Channel is the escalation state: which supplier the next request goes to.
type Channel uint8

const (
	// ChannelPrimary asks the primary doctor. It holds until a request is refused.
	ChannelPrimary Channel = iota
	// ChannelAlternative splits requests between a secondary doctor and a
	// dealer. A refused dealer request stays here.
	ChannelAlternative
	// ChannelDealer is absorbing. Once a dealer has supplied an increase,
	// every later request succeeds.
	ChannelDealer
)

func (c Channel) String() string {
	switch c {
	case ChannelPrimary:
		return "primary"
	case ChannelAlternative:
		return "alternative"
	case ChannelDealer:
		return "dealer"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// recentPeakEffects returns effects at the last EffectWindow dose peaks that
// came after the most recent dose increase.
func (p *Person) recentPeakEffects() []float64 {
	window := p.cal.Escalation.EffectWindow
	peaks := p.DosePeaks
	if len(peaks) > window {
		peaks = peaks[len(peaks)-window:]
	}
	effects := make([]float64, 0, len(peaks))
	for _, d := range peaks {
		if d > p.LastDoseIncreaseTick {
			effects = append(effects, p.EffectRecord[d])
		}
	}
	return effects
}

// wantsIncrease reports whether the person seeks a higher dose at all.
func (p *Person) wantsIncrease(r entropy.Source) bool {
	esc := p.cal.Escalation
	if p.Dose >= esc.DoseCeiling {
		return false
	}
	effects := p.recentPeakEffects()
	if len(effects) == 0 {
		return false
	}
	sum := 0.0
	for _, e := range effects {
		sum += e
	}
	if sum/float64(len(effects)) >= p.Dose*esc.IncreaseThreshold {
		// Still satisfied with the current dose.
		return false
	}
	return r.Float64() > p.DownwardPressure
}

// lastAttemptSource is the source of the most recent evaluation, or the
// primary doctor before any.
func (p *Person) lastAttemptSource() drugs.Source {
	if n := len(p.DoseIncreaseRecord); n > 0 {
		return p.DoseIncreaseRecord[n-1].Source
	}
	return drugs.PrimaryDoctor
}

// attemptIncrease asks the supplier selected by the current channel and
// advances the state machine.
func (p *Person) attemptIncrease(ch drugs.Channels, r entropy.Source) (drugs.Source, bool, error) {
	switch p.Channel {
	case ChannelPrimary:
		ok := r.Float64() < ch.PrimarySuccess
		if !ok {
			p.Channel = ChannelAlternative
		}
		return drugs.PrimaryDoctor, ok, nil
	case ChannelAlternative:
		if r.Float64() < ch.SecondaryShare {
			return drugs.SecondaryDoctor, r.Float64() < ch.SecondarySuccess, nil
		}
		ok := p.askDealer(ch, r)
		if ok {
			p.Channel = ChannelDealer
		}
		return drugs.Dealer, ok, nil
	case ChannelDealer:
		return drugs.Dealer, p.askDealer(ch, r), nil
	default:
		return 0, false, fmt.Errorf("%w: escalation channel %s", ErrInvariant, p.Channel)
	}
}

func (p *Person) askDealer(ch drugs.Channels, r entropy.Source) bool {
	if p.dealerEstablished {
		return true
	}
	p.dealerEstablished = r.Float64() < ch.DealerSuccess
	return p.dealerEstablished
}

// EvaluateEscalation runs the escalation rule at tick t, records the attempt,
// and applies the increase on success. Every evaluation is recorded, including
// ones where the person did not seek an increase.
func (p *Person) EvaluateEscalation(t int, tbl *drugs.Table, r entropy.Source) (DoseIncreaseAttempt, error) {
	attempt := DoseIncreaseAttempt{Tick: t, Source: p.lastAttemptSource()}
	if p.wantsIncrease(r) {
		src, ok, err := p.attemptIncrease(tbl.Channels, r)
		if err != nil {
			return attempt, err
		}
		attempt.Source = src
		attempt.Attempted = true
		attempt.Success = ok
	}

	doseType, err := entropy.WeightedChoice(tbl.DrugsBySource[attempt.Source], r)
	if err != nil {
		return attempt, fmt.Errorf("choosing dose type for %s: %w", attempt.Source, err)
	}
	attempt.DoseType = doseType
	p.DoseIncreaseRecord = append(p.DoseIncreaseRecord, attempt)

	if attempt.Success {
		p.SupplySource = attempt.Source
		p.IncreaseDose(t)
	}
	return attempt, nil
}

// IncreaseDose raises the preferred dose by one increment at tick t.
func (p *Person) IncreaseDose(t int) {
	p.Dose += p.Traits.DoseIncrement
	p.LastDoseIncreaseTick = t
	p.UpdateDownwardPressure()
}

// DealerEstablished reports whether a dealer has supplied an increase.
func (p *Person) DealerEstablished() bool {
	return p.dealerEstablished
}
