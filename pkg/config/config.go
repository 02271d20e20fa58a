// USB IP Display
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of USB IP Display.
//
// USB IP Display is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// USB IP Display is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with USB IP Display.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Values holds every tunable of the sender. There is no config file; values
// come from Defaults, then USB_IP_DISPLAY_* environment variables, then
// command line flags.
type Values struct {
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	TempDir         string        `mapstructure:"temp_dir" validate:"required"`
	SentryDSN       string        `mapstructure:"sentry_dsn" validate:"omitempty,url"`
	BaudRate        int           `mapstructure:"baud_rate" validate:"gt=0"`
	Repeats         int           `mapstructure:"repeats" validate:"gte=1,lte=10"`
	OnceRetries     int           `mapstructure:"once_retries" validate:"gte=1"`
	IOTimeout       time.Duration `mapstructure:"io_timeout" validate:"gt=0"`
	SubQueryTimeout time.Duration `mapstructure:"subquery_timeout" validate:"gt=0"`
	SearchBackoff   time.Duration `mapstructure:"search_backoff" validate:"gt=0"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	SendInterval    time.Duration `mapstructure:"send_interval" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RepeatDelay     time.Duration `mapstructure:"repeat_delay" validate:"gte=0"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	ReportErrors    bool          `mapstructure:"report_errors"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

func Defaults() Values {
	return Values{
		LogLevel:        "info",
		TempDir:         os.TempDir(),
		BaudRate:        DefaultBaudRate,
		Repeats:         DefaultRepeats,
		OnceRetries:     DefaultOnceRetries,
		IOTimeout:       DefaultIOTimeout,
		SubQueryTimeout: DefaultSubQueryTimeout,
		SearchBackoff:   DefaultSearchBackoff,
		SettleDelay:     DefaultSettleDelay,
		SendInterval:    DefaultSendInterval,
		PollInterval:    DefaultPollInterval,
		RepeatDelay:     DefaultRepeatDelay,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Load returns the defaults overlaid with any USB_IP_DISPLAY_* environment
// variables, validated.
func Load() (*Values, error) {
	defaults := Defaults()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("temp_dir", defaults.TempDir)
	v.SetDefault("sentry_dsn", defaults.SentryDSN)
	v.SetDefault("baud_rate", defaults.BaudRate)
	v.SetDefault("repeats", defaults.Repeats)
	v.SetDefault("once_retries", defaults.OnceRetries)
	v.SetDefault("io_timeout", defaults.IOTimeout)
	v.SetDefault("subquery_timeout", defaults.SubQueryTimeout)
	v.SetDefault("search_backoff", defaults.SearchBackoff)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("send_interval", defaults.SendInterval)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("repeat_delay", defaults.RepeatDelay)
	v.SetDefault("refresh_interval", defaults.RefreshInterval)
	v.SetDefault("report_errors", defaults.ReportErrors)

	var vals Values
	if err := v.Unmarshal(&vals); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}
	vals.LogLevel = strings.ToLower(strings.TrimSpace(vals.LogLevel))

	if err := Validate(&vals); err != nil {
		return nil, err
	}
	return &vals, nil
}

// Validate checks vals against its struct tags.
func Validate(vals *Values) error {
	if err := validate.Struct(vals); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ErrorReportingEnabled reports whether errors should be sent to Sentry.
func (v *Values) ErrorReportingEnabled() bool {
	return v.ReportErrors && v.SentryDSN != ""
}
