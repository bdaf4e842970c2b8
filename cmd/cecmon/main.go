//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/romshark/cecpoll/cec"
	"github.com/romshark/cecpoll/cecstat"
	"github.com/romshark/cecpoll/ratelimit"
)

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func newLogger(conf *Config, w io.Writer) zerolog.Logger {
	lvl, _ := zerolog.ParseLevel(conf.Log.Level) // Validated by loadConfig.
	if !conf.Log.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func main() {
	conf, configPath, err := loadConfig(os.Args[1:])
	fatalIf(err, "loading config")

	log := newLogger(conf, os.Stderr)

	dev, err := cec.Open(conf.Device.Path)
	fatalIf(err, "opening device")
	defer dev.Close()

	if caps, err := dev.Caps(); err != nil {
		log.Warn().Err(err).Msg("reading adapter capabilities")
	} else {
		log.Info().
			Str("driver", caps.DriverName()).
			Str("name", caps.AdapterName()).
			Msg("opened cec adapter")
	}

	if conf.Device.SetMode {
		follower, _ := cec.ParseFollowerMode(conf.Device.Follower)
		fatalIf(dev.SetMode(cec.ReceiveMode(follower)), "setting mode")
	}

	p, err := cec.NewProcessor(dev, cec.ProcessorConfig{
		DeviceName:     conf.Device.Path,
		PortID:         conf.Device.PortID,
		PollTimeout:    conf.Poll.Timeout,
		ThreadName:     conf.Poll.ThreadName,
		ThreadPriority: conf.Poll.ThreadPriority,
		Logger:         log,
		LogLimiter:     ratelimit.New(conf.logRates()),
		Settings:       conf.settings(),
	}, cec.HandlerFunc(func(e cec.Event) {
		fmt.Fprintf(os.Stdout, "%s %s\n", time.Now().Format(time.TimeOnly), e)
	}))
	fatalIf(err, "creating processor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	start := time.Now()
	w := p.Start(ctx)
	log.Info().
		Bool("enabled", conf.Settings.Enabled).
		Bool("system_control", conf.Settings.SystemControl).
		Msg("polling")

	var tick <-chan time.Time
	if conf.StatsInterval > 0 {
		ticker := time.NewTicker(conf.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	printer := message.NewPrinter(language.English)
	last := p.Stats()
	lastTime := start

LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case <-w.Done():
			break LOOP
		case <-hup:
			c, err := readConfigFile(configPath)
			if err != nil {
				log.Error().Err(err).Msg("reloading settings")
				continue
			}
			p.SetSettings(c.settings())
			log.Info().
				Bool("enabled", c.Settings.Enabled).
				Bool("system_control", c.Settings.SystemControl).
				Msg("settings reloaded")
		case now := <-tick:
			cur := p.Stats()
			d := cur.Since(last)
			elapsed := now.Sub(lastTime).Seconds()
			printer.Fprintf(os.Stderr,
				"frames=%d (%.1f/s) hotplug=%d dropped=%d errors=%d\n",
				cur[cecstat.Received],
				float64(d[cecstat.Received])/elapsed,
				cur[cecstat.HotPlug],
				cur.Dropped(),
				cur[cecstat.ReceiveErrors]+cur[cecstat.EventErrors]+cur[cecstat.PollErrors],
			)
			last, lastTime = cur, now
		}
	}

	if err := w.Stop(); err != nil {
		log.Error().Err(err).Msg("processor stopped")
	}
	_ = cecstat.Print(os.Stderr, conf.Device.Path, p.Stats(), time.Since(start))
}
