/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package config

import (
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FromFile reads a YAML/TOML/JSON config file via viper and builds a
// Config, translating each top-level key into the matching Option. The
// teacher's settings lived as package constants; here they're rehashable.
func FromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return FromViper(v)
}

// FromViper builds a Config from an already-populated viper instance,
// split out from FromFile so a rehash watcher can reuse it against a
// re-read of the same viper.Viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var opts []Option

	if host := v.GetString("hostname"); host != "" {
		opts = append(opts, WithHostname(host))
	}
	if sid := v.GetString("sid"); sid != "" {
		opts = append(opts, WithSID(sid))
	}
	if net := v.GetString("network"); net != "" {
		opts = append(opts, WithNetwork(net))
	}
	if desc := v.GetString("description"); desc != "" {
		opts = append(opts, WithDescription(desc))
	}
	if v.IsSet("admin") {
		opts = append(opts, WithAdmin(v.GetString("admin.name"), v.GetString("admin.email")))
	}
	if motd := v.GetStringSlice("motd"); len(motd) > 0 {
		opts = append(opts, WithMOTD(motd))
	}

	for _, l := range v.GetStringSlice("listeners") {
		opts = append(opts, WithListener(l, false))
	}
	for _, l := range v.GetStringSlice("tls_listeners") {
		opts = append(opts, WithListener(l, true))
	}

	if certFile, keyFile := v.GetString("tls.cert"), v.GetString("tls.key"); certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("config: loading tls keypair: %w", err)
		}
		opts = append(opts, WithTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}))
	}

	var opers []map[string]any
	if err := v.UnmarshalKey("opers", &opers); err == nil {
		for _, o := range opers {
			opts = append(opts, WithOper(OperBlock{
				Name:         toString(o["name"]),
				PasswordHash: toString(o["password_hash"]),
				Hostmasks:    toStringSlice(o["hostmasks"]),
				Privileges:   toStringSlice(o["privileges"]),
			}))
		}
	}

	var auths []map[string]any
	if err := v.UnmarshalKey("auth", &auths); err == nil {
		for _, a := range auths {
			opts = append(opts, WithAuth(AuthBlock{
				Hostmasks:  toStringSlice(a["hostmasks"]),
				ClassName:  toString(a["class"]),
				Password:   toString(a["password"]),
				NeedIdent:  toBool(a["need_ident"]),
				NeedSSL:    toBool(a["need_ssl"]),
				Spoof:      toString(a["spoof"]),
				PingFreq:   time.Duration(v.GetInt("ping_freq_seconds")) * time.Second,
				MaxClients: toInt(a["max_clients"]),
			}))
		}
	}

	opts = append(opts, WithBanFiles(
		v.GetString("bans.kline_file"),
		v.GetString("bans.dline_file"),
		v.GetString("bans.xline_file"),
	))

	return New(opts...)
}

// Store holds the live, atomically-swappable Config and is what a rehash
// replaces in one shot, sparing callers from holding a mutex across every
// config read the way the teacher's Server.RWMutex-guarded fields do.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore wraps an initial Config in a Store.
func NewStore(initial *Config) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// Load returns the current, live Config.
func (s *Store) Load() *Config {
	return s.ptr.Load()
}

// Swap atomically replaces the live Config, returning the previous value
// so callers can diff privilege sets or log what rehashed.
func (s *Store) Swap(next *Config) *Config {
	return s.ptr.Swap(next)
}

// WatchFile re-reads path on every fsnotify write/create event and swaps
// the Store, invoking onReload with the old and new Config. It runs until
// the watcher is closed by the returned stop func.
func WatchFile(path string, store *Store, onReload func(old, new *Config, err error)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, loadErr := FromFile(path)
				old := store.Load()
				if loadErr == nil {
					store.Swap(next)
				}
				if onReload != nil {
					onReload(old, next, loadErr)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
