package services

import (
	"strings"
	"time"

	"tripmind_go_backend/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// TimezoneFinder resolves an IANA zone from coordinates.
type TimezoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// ClientContext carries the hints a client sends with a turn.
type ClientContext struct {
	Country   string   `json:"country,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
}

type LocaleInfo struct {
	Country  string
	Locale   string
	Location *time.Location
	Currency string
}

// FormatTime renders t in the user's zone for prompts and summaries.
func (l LocaleInfo) FormatTime(t time.Time) string {
	return t.In(l.location()).Format("Monday, 2 January 2006 15:04 MST")
}

func (l LocaleInfo) location() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}

type LocaleDefaults struct {
	Locale   string
	Timezone string
	Currency string
}

// LocaleResolver works out country, zone and currency for a user. Client
// hints win over the stored profile, which wins over the defaults.
type LocaleResolver struct {
	finder   TimezoneFinder
	defaults LocaleDefaults
	logger   zerolog.Logger
}

func NewLocaleResolver(finder TimezoneFinder, defaults LocaleDefaults, logger zerolog.Logger) *LocaleResolver {
	if defaults.Locale == "" {
		defaults.Locale = "en-US"
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.Currency == "" {
		defaults.Currency = "USD"
	}
	return &LocaleResolver{finder: finder, defaults: defaults, logger: logger}
}

func (r *LocaleResolver) Resolve(user *models.User, hints ClientContext) LocaleInfo {
	var profile models.User
	if user != nil {
		profile = *user
	}

	locale := firstNonEmpty(hints.Locale, profile.Locale, r.defaults.Locale)
	country := strings.ToUpper(firstNonEmpty(hints.Country, profile.Country, regionOfLocale(locale)))

	zone := firstNonEmpty(hints.Timezone, profile.Timezone)
	if zone == "" && r.finder != nil && hints.Latitude != nil && hints.Longitude != nil {
		zone = r.finder.GetTimezoneName(*hints.Longitude, *hints.Latitude)
	}
	loc := r.loadLocation(zone)

	code := currencyFor(country, locale)
	if code == "" {
		code = r.defaults.Currency
	}

	return LocaleInfo{
		Country:  country,
		Locale:   locale,
		Location: loc,
		Currency: code,
	}
}

func (r *LocaleResolver) loadLocation(zone string) *time.Location {
	for _, name := range []string{zone, r.defaults.Timezone} {
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc
		}
		r.logger.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone")
	}
	return time.UTC
}

func regionOfLocale(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	return region.String()
}

func currencyFor(country, locale string) string {
	if country != "" {
		if region, err := language.ParseRegion(country); err == nil {
			if unit, ok := currency.FromRegion(region); ok {
				return unit.String()
			}
		}
	}
	if locale != "" {
		if tag, err := language.Parse(locale); err == nil {
			if unit, conf := currency.FromTag(tag); conf != language.No {
				return unit.String()
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
