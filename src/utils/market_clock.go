package utils

import (
	"strings"
	"time"

	"stock-exchange/src/logger"
	"stock-exchange/src/models"
)

// MarketClock reports the exchange session state. It gates orders when
// market.enforce_hours is set and backs the market status endpoint.
type MarketClock struct {
	MIC      string
	Calendar *TradingCalendar
	Logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewMarketClock(cfg models.MMarketConfig, l *logger.Logger) (*MarketClock, error) {
	cal, err := GetCalendar(cfg.MIC, cfg.Timezone, cfg.OpenTime, cfg.CloseTime)
	if err != nil {
		return nil, err
	}

	if cal.Fallback {
		l.Warning("No calendar for MIC '%s'. Using weekday session %s-%s %s.", cfg.MIC, cfg.OpenTime, cfg.CloseTime, cfg.Timezone)
	} else {
		l.Info("MarketClock: Loaded calendar for %s (%s).", strings.ToUpper(cfg.MIC), cal.Timezone)
	}

	return &MarketClock{MIC: strings.ToUpper(cfg.MIC), Calendar: cal, Logger: l}, nil
}

// -----------------------------------------------------------------------------

func (mc *MarketClock) IsOpen(t time.Time) bool {
	return mc.Calendar.IsOpenOnMinute(t)
}

// -----------------------------------------------------------------------------

// Status describes the session at t.
func (mc *MarketClock) Status(t time.Time) models.MMarketStatus {
	local := t
	tz := "UTC"
	if mc.Calendar.Timezone != nil {
		local = t.In(mc.Calendar.Timezone)
		tz = mc.Calendar.Timezone.String()
	}

	source := "calendar"
	if mc.Calendar.Fallback {
		source = "fallback"
	}

	return models.MMarketStatus{
		MIC:        mc.MIC,
		Open:       mc.Calendar.IsOpenOnMinute(t),
		TradingDay: mc.Calendar.IsTradingDay(t),
		Timezone:   tz,
		LocalTime:  local.Format(time.RFC3339),
		Source:     source,
	}
}
