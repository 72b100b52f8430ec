package schedule

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

const (
	DefaultTimeoutSec = 30
	MinTimeoutSec     = 1
	MaxTimeoutSec     = 300
	MinMaxDepth       = 1
	MaxMaxDepth       = 10
)

var (
	clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	cronField = regexp.MustCompile(`^[0-9A-Za-z*?/,\-]+$`)
)

// Normalize trims text fields, canonicalises weekdays and clamps the
// numeric limits. Unknown weekday names are kept so Validate can name
// them.
func Normalize(sc *types.Schedule) {
	sc.Name = strings.TrimSpace(sc.Name)
	sc.URL = strings.TrimSpace(sc.URL)
	sc.CronExpression = strings.Join(strings.Fields(sc.CronExpression), " ")
	sc.Time = strings.TrimSpace(sc.Time)
	sc.NotificationEmail = strings.TrimSpace(sc.NotificationEmail)
	sc.Frequency = types.Frequency(strings.ToLower(strings.TrimSpace(string(sc.Frequency))))

	if sc.TimeoutSec == 0 {
		sc.TimeoutSec = DefaultTimeoutSec
	}
	sc.TimeoutSec = clamp(sc.TimeoutSec, MinTimeoutSec, MaxTimeoutSec)
	sc.MaxDepth = clamp(sc.MaxDepth, MinMaxDepth, MaxMaxDepth)

	if len(sc.DaysOfWeek) > 0 {
		want := make(map[types.Weekday]bool)
		var unknown []types.Weekday
		for _, d := range sc.DaysOfWeek {
			if wd, ok := types.ParseWeekday(string(d)); ok {
				want[wd] = true
			} else {
				unknown = append(unknown, d)
			}
		}
		days := make([]types.Weekday, 0, len(sc.DaysOfWeek))
		for _, wd := range types.Weekdays {
			if want[wd] {
				days = append(days, wd)
			}
		}
		sc.DaysOfWeek = append(days, unknown...)
	}
}

func clamp(v types.FlexInt, lo, hi int) types.FlexInt {
	if int(v) < lo {
		return types.FlexInt(lo)
	}
	if int(v) > hi {
		return types.FlexInt(hi)
	}
	return v
}

// Validate checks the rules the backend enforces so bad schedules are
// rejected before any request
func Validate(sc types.Schedule) error {
	if strings.TrimSpace(sc.Name) == "" {
		return types.NewValidationError("name", "name is required")
	}
	if err := jobconfig.ValidateURL("url", sc.URL); err != nil {
		return err
	}
	if !sc.Frequency.Valid() {
		return types.NewValidationError("frequency", "frequency must be one of: hourly, daily, weekly, monthly, custom")
	}

	switch sc.Frequency {
	case types.FrequencyCustom:
		if err := validateCron(sc.CronExpression); err != nil {
			return err
		}
	case types.FrequencyWeekly:
		if len(sc.DaysOfWeek) == 0 {
			return types.NewValidationError("days_of_week", "at least one day is required for weekly schedules")
		}
		for _, d := range sc.DaysOfWeek {
			if _, ok := types.ParseWeekday(string(d)); !ok {
				return types.NewValidationError("days_of_week", "unknown day %q", d)
			}
		}
	case types.FrequencyMonthly:
		if sc.DayOfMonth == nil || *sc.DayOfMonth < 1 || *sc.DayOfMonth > 31 {
			return types.NewValidationError("day_of_month", "day of month must be between 1 and 31")
		}
	}

	if sc.Frequency != types.FrequencyHourly && sc.Frequency != types.FrequencyCustom && sc.Time != "" {
		if !clockTime.MatchString(strings.TrimSpace(sc.Time)) {
			return types.NewValidationError("time", "time must be HH:MM, got %q", sc.Time)
		}
	}

	if sc.NotifyOnCompletion {
		email := strings.TrimSpace(sc.NotificationEmail)
		if email == "" {
			return types.NewValidationError("notification_email", "email is required when notifications are enabled")
		}
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			return types.NewValidationError("notification_email", "invalid email address %q", email)
		}
	}

	if sc.ProxyID != nil && *sc.ProxyID <= 0 {
		return types.NewValidationError("proxy_id", "proxy id must be positive")
	}
	return nil
}

func validateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return types.NewValidationError("cron_expression", "cron expression is required for custom frequency")
	}
	if len(fields) != 5 {
		return types.NewValidationError("cron_expression", "cron expression needs 5 fields, got %d", len(fields))
	}
	for _, f := range fields {
		if !cronField.MatchString(f) {
			return types.NewValidationError("cron_expression", "invalid cron field %q", f)
		}
	}
	return nil
}
