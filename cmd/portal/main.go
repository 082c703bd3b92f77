package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/edutrack-uz/portal-client/authflow"
	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/dashboard"
	"github.com/edutrack-uz/portal-client/internal/config"
	"github.com/edutrack-uz/portal-client/internal/utils"
	"github.com/edutrack-uz/portal-client/lessons"
	"github.com/edutrack-uz/portal-client/notifications"
	"github.com/edutrack-uz/portal-client/session"
	"github.com/edutrack-uz/portal-client/shop"
	"github.com/edutrack-uz/portal-client/storage"
	"github.com/edutrack-uz/portal-client/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	displayAppname("portal")

	store, err := storage.NewFileStore(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("storage.NewFileStore: %w", err)
	}

	client := transport.NewClient(cfg.BaseURL,
		transport.WithTimeout(cfg.HTTPTimeout),
		transport.WithLogger(logger))

	sess, err := session.NewManager(client, store, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}

	store2, err := cache.New(sess, cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("cache.New: %w", err)
	}

	auth, err := authflow.NewService(client, sess,
		authflow.WithLogger(logger),
		authflow.WithPollInterval(cfg.AuthPollInterval))
	if err != nil {
		return fmt.Errorf("authflow.NewService: %w", err)
	}

	dash, err := dashboard.NewService(store2, sess, dashboard.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("dashboard.NewService: %w", err)
	}
	lessonsSvc, err := lessons.NewService(store2, sess, dash, lessons.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("lessons.NewService: %w", err)
	}
	shopSvc, err := shop.NewService(store2, dash, shop.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("shop.NewService: %w", err)
	}
	notify, err := notifications.NewService(sess,
		notifications.WithLogger(logger),
		notifications.WithPollInterval(cfg.NotifyPollInterval))
	if err != nil {
		return fmt.Errorf("notifications.NewService: %w", err)
	}

	if !sess.LoggedIn() {
		if cfg.AccessCode == "" {
			return errors.New("not logged in and PORTAL_ACCESS_CODE is not set")
		}
		if _, err := auth.Login(ctx, cfg.AccessCode); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	countdown, err := renderSnapshot(ctx, logger, cfg, dash, lessonsSvc, shopSvc)
	if err != nil {
		return err
	}
	if countdown != nil {
		defer countdown.Stop()
	}

	// Background polling until interrupted.
	go notify.Run(ctx)
	unsubscribe := notify.Subscribe(func(snap notifications.Snapshot) {
		if snap.Err != nil {
			return
		}
		logger.Info().Int("total", len(snap.Notifications)).Msg("notifications updated")
	})
	defer unsubscribe()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func renderSnapshot(ctx context.Context, logger zerolog.Logger, cfg config.Config, dash *dashboard.Service, lessonsSvc *lessons.Service, shopSvc *shop.Service) (*lessons.Countdown, error) {
	dashResp, err := dash.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard fetch: %w", err)
	}
	enrollment := dashResp.Data.Enrollment
	logger.Info().
		Str("student", enrollment.FullName).
		Str("course", enrollment.Course.Name).
		Int("coins", enrollment.Balance).
		Int("xp", enrollment.TotalPoints).
		Int("rank", enrollment.Rank).
		Msg("dashboard loaded")

	if _, err := shopSvc.Fetch(ctx); err != nil {
		logger.Warn().Err(err).Msg("shop fetch failed")
	}

	lessonsResp, err := lessonsSvc.Fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("lessons fetch failed")
		return nil, nil
	}

	window := lessonsResp.Data.Attendance
	state := lessons.DeriveAttendanceState(window, time.Now())
	logger.Info().
		Str("topic", window.LessonTopic).
		Str("state", string(state)).
		Str("status", string(utils.Value(window.Status))).
		Msg("attendance window")

	if state == lessons.StateOpen {
		countdown := lessons.NewCountdown(
			func(remaining time.Duration) {
				logger.Info().Str("remaining", lessons.FormatRemaining(remaining)).Msg("attendance window closing")
			},
			func() {
				logger.Info().Msg("attendance window expired")
			},
			lessons.WithTickInterval(cfg.AttendanceTick),
		)
		countdown.Start(window.ClosesAt)
		return countdown, nil
	}
	return nil, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
