// Command fanctl drives an EMC2305 fan controller from the command line.
//
// Usage:
//
//	fanctl [-config file] [-bus name] status
//	fanctl [-config file] [-bus name] apply
//	fanctl [-config file] [-bus name] set-pwm <channel> <percent>
//	fanctl [-config file] [-bus name] set-rpm <channel> <rpm>
//	fanctl [-config file] [-bus name] monitor [interval]
//	fanctl [-config file] [-bus name] lock
//	fanctl init-config <path>
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"emc2305-go/emc2305"
	"emc2305-go/i2cbus"
	"emc2305-go/settings"
)

func main() {
	configPath := flag.String("config", "", "configuration file (default: search standard locations)")
	busName := flag.String("bus", "", "I2C bus, overriding the configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "init-config" {
		if len(args) != 1 {
			fatal("init-config needs a target path")
		}
		if err := settings.CreateDefault(args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("wrote %s\n", args[0])
		return
	}

	cfg, err := settings.Load(*configPath)
	if err != nil {
		fatal("%v", err)
	}
	setupLogging(cfg.LogLevel)
	if *busName != "" {
		cfg.I2C.Bus = *busName
	}

	bus, err := i2cbus.OpenLinux(cfg.BusConfig())
	if err != nil {
		fatal("open bus: %v", err)
	}
	defer bus.Close()

	dev, err := emc2305.New(bus, cfg.DeviceConfig())
	if err != nil {
		if errors.Is(err, emc2305.ErrDeviceNotFound) {
			fatal("no EMC2305 at 0x%02X on bus %s", byte(cfg.Device.Address), cfg.I2C.Bus)
		}
		fatal("%v", err)
	}

	switch cmd {
	case "status":
		err = runStatus(dev, cfg)
	case "apply":
		err = runApply(dev, cfg)
	case "set-pwm":
		err = runSetPWM(dev, args)
	case "set-rpm":
		err = runSetRPM(dev, args)
	case "monitor":
		err = runMonitor(dev, cfg, args)
	case "lock":
		err = dev.LockConfiguration()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fanctl [flags] <command>

commands:
  status                    show every channel
  apply                     push the configuration file to the device
  set-pwm <channel> <pct>   set duty cycle (0-100)
  set-rpm <channel> <rpm>   set RPM target (FSC mode)
  monitor [interval]        poll status until interrupted
  lock                      lock configuration until hardware reset
  init-config <path>        write a starter configuration file

flags:
`)
	flag.PrintDefaults()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fanctl: "+format+"\n", args...)
	os.Exit(1)
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func fanName(cfg *settings.Settings, channel int) string {
	if fan, ok := cfg.Device.Fans[channel]; ok {
		return fan.Name
	}
	return fmt.Sprintf("Fan %d", channel)
}

func runStatus(dev *emc2305.Device, cfg *settings.Settings) error {
	f := dev.Features()
	fmt.Printf("%s (rev 0x%02X, %d channels)\n\n", cfg.Device.Name, f.Revision, f.FanChannels)

	states, err := dev.FanStates()
	if err != nil {
		return err
	}
	fmt.Printf("%-3s %-14s %-5s %6s %8s %8s  %s\n",
		"CH", "NAME", "MODE", "DUTY", "TARGET", "RPM", "STATUS")
	for _, st := range states {
		target := "-"
		if st.ControlMode == emc2305.ModeFSC {
			target = strconv.Itoa(st.TargetRPM)
		}
		fmt.Printf("%-3d %-14s %-5s %5.1f%% %8s %8d  %s\n",
			st.Channel, fanName(cfg, st.Channel), st.ControlMode,
			st.PWMPercent, target, st.CurrentRPM, st.Status)
	}
	return nil
}

// runApply pushes the file configuration to the device: per-channel
// register blocks, alert gating, then the default duty or RPM target for
// each enabled channel.
func runApply(dev *emc2305.Device, cfg *settings.Settings) error {
	for ch := 1; ch <= emc2305.NumChannels; ch++ {
		fan, ok := cfg.Device.Fans[ch]
		if !ok {
			continue
		}
		if err := dev.ConfigureFan(ch, fan.FanConfig()); err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		if err := dev.ConfigureFanAlerts(ch, cfg.Device.EnableAlerts); err != nil {
			return fmt.Errorf("channel %d alerts: %w", ch, err)
		}
		if !fan.Enabled {
			continue
		}
		if fan.ControlMode == "fsc" {
			err := dev.SetTargetRPM(ch, fan.DefaultTargetRPM)
			if err != nil {
				return fmt.Errorf("channel %d target: %w", ch, err)
			}
		} else {
			err := dev.SetPWMDutyCycle(ch, float64(fan.DefaultDutyPercent))
			if err != nil {
				return fmt.Errorf("channel %d duty: %w", ch, err)
			}
		}
	}
	return nil
}

func runSetPWM(dev *emc2305.Device, args []string) error {
	if len(args) != 2 {
		return errors.New("need <channel> <percent>")
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad channel %q", args[0])
	}
	percent, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad percent %q", args[1])
	}
	return dev.SetPWMDutyCycle(channel, percent)
}

func runSetRPM(dev *emc2305.Device, args []string) error {
	if len(args) != 2 {
		return errors.New("need <channel> <rpm>")
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad channel %q", args[0])
	}
	rpm, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad rpm %q", args[1])
	}
	if err := dev.SetControlMode(channel, emc2305.ModeFSC); err != nil {
		return err
	}
	return dev.SetTargetRPM(channel, rpm)
}

func runMonitor(dev *emc2305.Device, cfg *settings.Settings, args []string) error {
	interval := 2 * time.Second
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("bad interval %q", args[0])
		}
		interval = d
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if err := runStatus(dev, cfg); err != nil {
			return err
		}
		active, err := dev.IsAlertActive()
		if err != nil {
			return err
		}
		if active {
			slog.Warn("fan fault latched")
		}
		fmt.Println()

		select {
		case <-stop:
			return nil
		case <-tick.C:
		}
	}
}
