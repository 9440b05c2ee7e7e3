package expiry

import (
	"math/rand"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type ScheduleConfig struct {
	WarnBefore time.Duration // default: 7 days

	FarDelay time.Duration // default: 12 hours

	NearMinDelay time.Duration // default: 30 minutes
	NearMaxDelay time.Duration // default: 120 minutes

	ExpiredDelay time.Duration // default: 30 days

	RetryDelay time.Duration // default: 5 minutes
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		WarnBefore: 7 * 24 * time.Hour,

		FarDelay: 12 * time.Hour,

		NearMinDelay: 30 * time.Minute,
		NearMaxDelay: 120 * time.Minute,

		ExpiredDelay: 30 * 24 * time.Hour,

		RetryDelay: 5 * time.Minute,
	}
}

// Schedule решает, когда контракт нужно проверить в следующий раз.
// Далёкие от истечения контракты опрашиваются редко, попавшие в окно
// предупреждения — часто (с джиттером, чтобы батчи не били в одну минуту),
// уже истёкшие — почти никогда.
type Schedule struct {
	cfg ScheduleConfig
	r   Rand
}

func NewSchedule(cfg ScheduleConfig, r Rand) *Schedule {
	def := DefaultScheduleConfig()
	if cfg.WarnBefore <= 0 {
		cfg.WarnBefore = def.WarnBefore
	}
	if cfg.FarDelay <= 0 {
		cfg.FarDelay = def.FarDelay
	}
	if cfg.NearMinDelay <= 0 {
		cfg.NearMinDelay = def.NearMinDelay
	}
	if cfg.NearMaxDelay <= 0 {
		cfg.NearMaxDelay = def.NearMaxDelay
	}
	if cfg.NearMaxDelay < cfg.NearMinDelay {
		cfg.NearMaxDelay = cfg.NearMinDelay
	}
	if cfg.ExpiredDelay <= 0 {
		cfg.ExpiredDelay = def.ExpiredDelay
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Schedule{cfg: cfg, r: r}
}

func DefaultSchedule() *Schedule {
	return NewSchedule(DefaultScheduleConfig(), nil)
}

func (s *Schedule) WarnBefore() time.Duration { return s.cfg.WarnBefore }

func (s *Schedule) NextCheckDelay(now time.Time, c *models.Contract) time.Duration {
	untilEnd := c.EndDate.Sub(now)

	switch {
	case untilEnd <= 0:
		return s.cfg.ExpiredDelay
	case untilEnd <= s.cfg.WarnBefore:
		min := s.cfg.NearMinDelay
		max := s.cfg.NearMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		return time.Duration(secMin+s.r.Intn(secMax-secMin+1)) * time.Second
	default:
		// не позже момента входа в окно предупреждения
		untilWindow := untilEnd - s.cfg.WarnBefore
		if untilWindow < s.cfg.FarDelay {
			return untilWindow
		}
		return s.cfg.FarDelay
	}
}

func (s *Schedule) RetryDelay() time.Duration { return s.cfg.RetryDelay }
