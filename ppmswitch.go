package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	c "lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/diag"
	"lautenbacher.net/ppmswitch/logging"
	pl "lautenbacher.net/ppmswitch/platform"
	"lautenbacher.net/ppmswitch/ppm"
	u "lautenbacher.net/ppmswitch/util"
)

// reloadDebounce swallows the burst of events editors produce when saving.
const reloadDebounce = 500 * time.Millisecond

type App struct {
	ossignal   chan os.Signal
	platform   pl.Platform
	sinks      []diag.Sink
	status     *u.Latest[ppm.Status]
	web        *http.Server
	stopsignal chan bool
	shutdownWg sync.WaitGroup
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{
		ossignal:   ossignal,
		stopsignal: make(chan bool),
	}
}

func main() {
	cfile := flag.String("config", c.CONFILE, "Path to the config file")
	realp := flag.Bool("real", false, "Set to true if program runs on real hardware")
	showp := flag.Bool("show", false, "Show the measured pulses on real hardware")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	watcher, err := watchConfig(*cfile, ossignal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Not watching config file: %v\n", err)
	} else {
		defer watcher.Close()
	}

	for {
		conf, err := c.ReadConfig(*cfile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		conf.RealHW = *realp
		conf.ShowPulses = *showp

		// hold log output back while a TUI owns the terminal
		if err := logging.Init(conf.LogConfig(), !conf.RealHW || conf.ShowPulses); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}

		app := NewApp(ossignal)
		if err := app.initialise(conf); err != nil {
			slog.Error("Startup failed", "error", err)
			app.shutdown()
			logging.Close()
			os.Exit(1)
		}

		sig := <-ossignal
		slog.Info("Received signal", "signal", sig)
		app.shutdown()
		logging.BufferOutput()
		if err := logging.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if sig != syscall.SIGHUP {
			return
		}
	}
}

func (a *App) initialise(conf *c.Config) error {
	slog.Info("Starting ppmswitch", "realhw", conf.RealHW, "config", conf.Configfile,
		"samples", conf.Switch.CalibrationSamples, "window", conf.Switch.AveragingWindow,
		"fraction", conf.Switch.DeflectionFraction, "sampler", conf.Switch.Sampler)

	if conf.RealHW {
		rpi := pl.NewRaspberryPiPlatform(conf)
		if conf.ShowPulses {
			rpi.SetPulseViewer(pl.NewPulseViewer(a.ossignal))
		}
		a.platform = rpi
	} else {
		a.platform = pl.NewTUIPlatform(conf, a.ossignal)
	}

	sinks, err := diag.Open(conf.Diagnostics)
	if err != nil {
		return err
	}
	a.sinks = sinks

	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	if !a.waitReady() {
		return nil
	}

	if err := a.startSwitch(conf.SwitchConfig(), a.observer()); err != nil {
		return err
	}
	if conf.Web.Enabled {
		a.startWeb(conf.Web.Addr, conf.Configfile)
	}
	return nil
}

// waitReady blocks until the platform is ready. A signal arriving first is
// put back for the main loop and aborts the startup.
func (a *App) waitReady() bool {
	select {
	case <-a.platform.Ready():
		return true
	case sig := <-a.ossignal:
		slog.Warn("Startup interrupted", "signal", sig)
		select {
		case a.ossignal <- sig:
		default:
		}
		return false
	}
}

func (a *App) observer() ppm.Observer {
	obs := ppm.MultiObserver{ppm.NewLogObserver(slog.Default())}
	for _, s := range a.sinks {
		obs = append(obs, s)
	}
	return obs
}

func (a *App) startSwitch(cfg ppm.SwitchConfig, obs ppm.Observer) error {
	sw, err := ppm.NewSwitch(cfg, a.platform, a.platform, obs)
	if err != nil {
		return err
	}
	a.status = sw.Status()
	a.platform.Watch(a.status)

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		sw.Run(a.stopsignal)
	}()
	return nil
}

// startWeb serves the status and the runtime configuration. A config
// change written by the API restarts the app through the file watcher.
func (a *App) startWeb(addr, cfile string) {
	mux := http.NewServeMux()
	mux.Handle("/api/status", diag.StatusHandler(a.status))
	mux.Handle("/api/config", c.ConfigHandler(cfile))
	a.web = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		slog.Info("Web API listening", "addr", addr)
		if err := a.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API failed", "error", err)
		}
	}()
}

func (a *App) shutdown() {
	if a.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.web.Shutdown(ctx); err != nil {
			slog.Error("Error stopping web API", "error", err)
		}
		cancel()
	}
	close(a.stopsignal)
	a.shutdownWg.Wait()
	if a.platform != nil {
		a.platform.Stop()
	}
	if err := diag.CloseAll(a.sinks); err != nil {
		slog.Error("Error closing diagnostics", "error", err)
	}
}

// watchConfig sends SIGHUP to ossignal whenever cfile is written, which
// restarts the application with the new configuration.
func watchConfig(cfile string, ossignal chan<- os.Signal) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(cfile)); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(cfile)

	go func() {
		var last time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if time.Since(last) < reloadDebounce {
					continue
				}
				last = time.Now()
				slog.Info("Config file changed, restarting", "file", event.Name)
				select {
				case ossignal <- syscall.SIGHUP:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}
