// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package browser drives a Chrome instance through WebDriver into a call and
// samples the call state from the meeting page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
)

// ErrNotJoined is returned by calls that need a joined conference.
var ErrNotJoined = errors.New("not joined")

// Options configure the browser client.
type Options struct {
	WebDriverURL string
	Driver       DriverOptions
	// JoinPollInterval is how often the joined predicate is evaluated.
	JoinPollInterval time.Duration
	// ChromeArgs replace DefaultChromeArgs when set.
	ChromeArgs []string
	// AppName is shown as the application name inside the meeting UI.
	AppName string
}

// DefaultChromeArgs start a kiosk browser that accepts media without prompts.
func DefaultChromeArgs() []string {
	return []string{
		"--use-fake-ui-for-media-stream",
		"--start-maximized",
		"--kiosk",
		"--enabled",
		"--disable-infobars",
		"--autoplay-policy=no-user-gesture-required",
	}
}

// Observer implements ports.CallObserver. One Observer serves one session.
type Observer struct {
	driver *Driver
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	sid    string
	joined bool
	quit   bool
	last   ports.CallStats
}

var _ ports.CallObserver = (*Observer)(nil)

// NewObserver creates an observer; the browser starts on Join.
func NewObserver(opts Options) *Observer {
	if opts.JoinPollInterval <= 0 {
		opts.JoinPollInterval = 500 * time.Millisecond
	}
	if len(opts.ChromeArgs) == 0 {
		opts.ChromeArgs = DefaultChromeArgs()
	}
	if opts.AppName == "" {
		opts.AppName = "Jibri"
	}
	return &Observer{
		driver: NewDriver(opts.WebDriverURL, opts.Driver),
		opts:   opts,
		logger: log.WithComponent("browser"),
	}
}

// NewFactory returns a CallObserverFactory creating one Observer per job.
func NewFactory(opts Options) ports.CallObserverFactory {
	return func(ctx context.Context, params model.JobParams) (ports.CallObserver, error) {
		o := NewObserver(opts)
		o.logger = log.WithContext(ctx, o.logger)
		return o, nil
	}
}

// Join starts the browser, loads the call and waits until the conference
// reports joined or ctx ends.
func (o *Observer) Join(ctx context.Context, call model.CallParams) error {
	target, err := CallPageURL(call, o.opts.AppName)
	if err != nil {
		return lifecycle.NewReasonError(model.RFailedToJoinCall, err.Error(), err)
	}

	sid, err := o.ensureSession(ctx)
	if err != nil {
		return lifecycle.NewScopedError(model.ScopeSystem, model.RFailedToJoinCall, "start browser", err)
	}

	if call.Login.Username != "" {
		if err := o.driver.Navigate(ctx, sid, originOf(target)); err != nil {
			return fmt.Errorf("load call origin: %w", err)
		}
		if err := o.driver.Execute(ctx, sid, scriptSetCredentials, []any{qualifiedUser(call.Login), call.Login.Password}, nil); err != nil {
			return fmt.Errorf("set credentials: %w", err)
		}
	}

	o.logger.Info().
		Str(log.FieldEvent, "browser.navigate").
		Str(log.FieldCallURL, platformnet.SanitizeURL(call.URL)).
		Msg("loading call page")
	if err := o.driver.Navigate(ctx, sid, target); err != nil {
		return fmt.Errorf("load call page: %w", err)
	}

	if err := o.waitJoined(ctx, sid); err != nil {
		return err
	}
	if err := o.driver.Execute(ctx, sid, scriptWatchRoom, nil, nil); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldEvent, "browser.room_watch_failed").Msg("room listeners not installed")
	}

	o.mu.Lock()
	o.joined = true
	o.mu.Unlock()
	o.logger.Info().Str(log.FieldEvent, "browser.joined").Msg("conference joined")
	return nil
}

func (o *Observer) ensureSession(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.quit {
		return "", errors.New("observer already quit")
	}
	if o.sid != "" {
		return o.sid, nil
	}
	sid, err := o.driver.NewSession(ctx, o.opts.ChromeArgs)
	if err != nil {
		return "", err
	}
	o.sid = sid
	return sid, nil
}

func (o *Observer) waitJoined(ctx context.Context, sid string) error {
	ticker := time.NewTicker(o.opts.JoinPollInterval)
	defer ticker.Stop()
	for {
		var joined bool
		if err := o.driver.Execute(ctx, sid, scriptIsJoined, nil, &joined); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("check joined: %w", err)
		}
		if joined {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("conference not joined: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Observer) joinedSession() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.joined || o.sid == "" {
		return "", ErrNotJoined
	}
	return o.sid, nil
}

// Poll samples the call state.
func (o *Observer) Poll(ctx context.Context) (ports.CallStats, error) {
	sid, err := o.joinedSession()
	if err != nil {
		return ports.CallStats{}, err
	}
	var stats *ports.CallStats
	if err := o.driver.Execute(ctx, sid, scriptStats, nil, &stats); err != nil {
		return ports.CallStats{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if stats == nil {
		// The page lost its room without a conference end: report the last
		// known call with the transport down so the media checks decide.
		lost := o.last
		lost.IceConnected = false
		lost.DownloadBitrate = 0
		lost.Ended = false
		return lost, nil
	}
	o.last = *stats
	return *stats, nil
}

// Participants lists remote participants.
func (o *Observer) Participants(ctx context.Context) ([]ports.Participant, error) {
	sid, err := o.joinedSession()
	if err != nil {
		return nil, err
	}
	var out []ports.Participant
	if err := o.driver.Execute(ctx, sid, scriptParticipants, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddToPresence publishes key=value in the recorder's presence.
func (o *Observer) AddToPresence(ctx context.Context, key, value string) error {
	sid, err := o.joinedSession()
	if err != nil {
		return err
	}
	var ok bool
	if err := o.driver.Execute(ctx, sid, scriptAddToPresence, []any{key, value}, &ok); err != nil {
		return err
	}
	if !ok {
		return ErrNotJoined
	}
	return nil
}

// Leave hangs up. It is a no-op when not joined.
func (o *Observer) Leave(ctx context.Context) error {
	o.mu.Lock()
	sid, joined := o.sid, o.joined
	o.joined = false
	o.mu.Unlock()
	if !joined {
		return nil
	}
	return o.driver.Execute(ctx, sid, scriptHangup, nil, nil)
}

// Quit closes the browser. Idempotent.
func (o *Observer) Quit(ctx context.Context) error {
	o.mu.Lock()
	if o.quit {
		o.mu.Unlock()
		return nil
	}
	o.quit = true
	sid := o.sid
	o.sid = ""
	o.joined = false
	o.mu.Unlock()
	if sid == "" {
		return nil
	}
	return o.driver.DeleteSession(ctx, sid)
}

// CallPageURL builds the meeting URL with the recorder configuration in the fragment.
func CallPageURL(call model.CallParams, appName string) (string, error) {
	u, ok := platformnet.ParseDirectHTTPURL(call.URL)
	if !ok {
		return "", fmt.Errorf("invalid call url")
	}
	display := call.DisplayName
	if display == "" {
		display = appName
	}
	params := []string{
		"config.iAmRecorder=true",
		"config.externalConnectUrl=null",
		"config.startWithAudioMuted=true",
		"config.startWithVideoMuted=true",
		"config.prejoinPageEnabled=false",
		"config.requireDisplayName=false",
		"config.p2p.enabled=false",
		"config.analytics.disabled=true",
		"interfaceConfig.APP_NAME=" + jsString(appName),
		"userInfo.displayName=" + jsString(display),
	}
	return u.String() + "#" + strings.Join(params, "&"), nil
}

func jsString(s string) string {
	return url.QueryEscape(strconv.Quote(s))
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/"
}

func qualifiedUser(c model.Credentials) string {
	if c.Domain == "" || strings.Contains(c.Username, "@") {
		return c.Username
	}
	return c.Username + "@" + c.Domain
}
