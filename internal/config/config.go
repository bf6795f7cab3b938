/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package config holds the immutable, functional-options-built server
// configuration tree, generalized from the teacher's scattered
// irc.WithHostname/irc.WithNetwork/irc.WithLogger option calls (see
// cmd/dircd/main.go in the teacher tree) into one Config value a rehash
// can swap out atomically.
package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solanum-go/ircd/internal/logfmt"
)

// OperBlock describes a single configured operator account.
type OperBlock struct {
	Name         string
	PasswordHash string
	Hostmasks    []string
	Privileges   []string
}

// AuthBlock describes a single auth{} class resolved by the hostmask index
// during client registration (§4.11).
type AuthBlock struct {
	Hostmasks  []string
	ClassName  string
	Password   string
	NeedIdent  bool
	NeedSSL    bool
	Spoof      string
	PingFreq   time.Duration
	MaxClients int
}

// ListenerBlock describes one bound listening address.
type ListenerBlock struct {
	Address string
	TLS     bool
}

// Config is the immutable, fully-resolved server configuration. A rehash
// builds a new Config and swaps it in; nothing here is mutated in place.
type Config struct {
	Hostname    string
	SID         string
	Network     string
	Description string
	AdminName   string
	AdminEmail  string
	MOTD        []string

	Listeners []ListenerBlock
	TLSConfig *tls.Config

	Opers []OperBlock
	Auths []AuthBlock

	Limits Limits

	Logger      *logrus.Logger
	LogLevel    logrus.Level
	LogFormat   logrus.Formatter
	ShutdownCtx context.Context
	ShutdownFn  context.CancelFunc
	GraceTime   time.Duration

	KlinePath string
	DlinePath string
	XlinePath string
}

// Option mutates a Config being built by New.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(c *Config) error { return f(c) }

// New builds a Config from the given options, applying sane defaults the
// same way the teacher's NewServer seeded support/motd/hostname defaults
// before options existed to override them.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{
		Hostname:  "irc.localhost.net",
		Network:   "solanum-go",
		Limits:    DefaultLimits(),
		LogLevel:  logrus.InfoLevel,
		GraceTime: 30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetLevel(cfg.LogLevel)
		if cfg.LogFormat != nil {
			cfg.Logger.SetFormatter(cfg.LogFormat)
		}
	}

	if cfg.SID == "" {
		cfg.SID = "0SG"
	}

	return cfg, nil
}

func WithHostname(host string) Option {
	return optFunc(func(c *Config) error {
		c.Hostname = host
		return nil
	})
}

func WithSID(sid string) Option {
	return optFunc(func(c *Config) error {
		if len(sid) != 3 {
			return fmt.Errorf("sid %q must be exactly 3 characters", sid)
		}
		c.SID = sid
		return nil
	})
}

func WithNetwork(name string) Option {
	return optFunc(func(c *Config) error {
		c.Network = name
		return nil
	})
}

func WithDescription(desc string) Option {
	return optFunc(func(c *Config) error {
		c.Description = desc
		return nil
	})
}

func WithAdmin(name, email string) Option {
	return optFunc(func(c *Config) error {
		c.AdminName = name
		c.AdminEmail = email
		return nil
	})
}

func WithMOTD(lines []string) Option {
	return optFunc(func(c *Config) error {
		c.MOTD = lines
		return nil
	})
}

func WithListener(addr string, useTLS bool) Option {
	return optFunc(func(c *Config) error {
		c.Listeners = append(c.Listeners, ListenerBlock{Address: addr, TLS: useTLS})
		return nil
	})
}

func WithTLSConfig(tc *tls.Config) Option {
	return optFunc(func(c *Config) error {
		c.TLSConfig = tc
		return nil
	})
}

func WithOper(o OperBlock) Option {
	return optFunc(func(c *Config) error {
		c.Opers = append(c.Opers, o)
		return nil
	})
}

func WithAuth(a AuthBlock) Option {
	return optFunc(func(c *Config) error {
		c.Auths = append(c.Auths, a)
		return nil
	})
}

func WithLimits(l Limits) Option {
	return optFunc(func(c *Config) error {
		c.Limits = l
		return nil
	})
}

func WithLogger(logger *logrus.Logger) Option {
	return optFunc(func(c *Config) error {
		c.Logger = logger
		return nil
	})
}

func WithLogLevel(level logrus.Level) Option {
	return optFunc(func(c *Config) error {
		c.LogLevel = level
		return nil
	})
}

// WithDefaultLogFormatter wires the termenv-backed console formatter in
// internal/logfmt, in place of logrus's plain text formatter.
func WithDefaultLogFormatter() Option {
	return optFunc(func(c *Config) error {
		c.LogFormat = logfmt.New(
			logfmt.ShowFullLevel(false),
			logfmt.WithTimestampFormat(time.StampMilli),
		)
		return nil
	})
}

func WithGracefulShutdown(ctx context.Context, grace time.Duration) Option {
	return optFunc(func(c *Config) error {
		c.ShutdownCtx = ctx
		c.GraceTime = grace
		return nil
	})
}

func WithBanFiles(klinePath, dlinePath, xlinePath string) Option {
	return optFunc(func(c *Config) error {
		c.KlinePath = klinePath
		c.DlinePath = dlinePath
		c.XlinePath = xlinePath
		return nil
	})
}
