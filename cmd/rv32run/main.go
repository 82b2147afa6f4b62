// Command rv32run is a headless driver for the rv32 machine: it loads a
// boot image, optional device tree and flash image, wires up an optional
// network transport, and runs the hart until it halts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/tinyrange/rv32ima/internal/initx"
	"github.com/tinyrange/rv32ima/internal/rv32"
)

func main() {
	if err := run(); err != nil {
		var exitErr *initx.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		headless    = flag.Bool("n", true, "run headless (the only supported mode)")
		rawImage    = flag.String("b", "", "raw boot image to load at the RAM base")
		elfImage    = flag.String("e", "", "ELF boot image")
		dtbPath     = flag.String("d", "", "device tree blob to load")
		mtdPath     = flag.String("mtd", "", "flash/initrd image for the MTD window")
		singleStep  = flag.Bool("s", false, "trace every instruction at debug level")
		memSize     = flag.Uint64("m", 128*1024*1024, "RAM size in bytes")
		netSocket   = flag.String("net", "", "unix socket path for the network transport")
		exitOnECall = flag.Bool("exit-on-ecall", false, "stop the machine on a guest ECALL with a7=93")
		genDTB      = flag.Bool("gen-dtb", false, "auto-generate a device tree instead of requiring -d")
		configPath  = flag.String("config", "", "YAML machine configuration file")
		debug       = flag.Bool("debug", false, "enable debug logging")
		console     = flag.Bool("console", false, "attach stdin/stdout as an interactive UART console")
		monitor     = flag.Bool("monitor", false, "log a snapshot of the guest console screen on exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if !*headless {
		return fmt.Errorf("rv32run: only headless mode (-n) is supported")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	memSizeSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "m" {
			memSizeSet = true
		}
	})

	cfg := &rv32.Config{
		BootImage:   *rawImage,
		ELFImage:    *elfImage,
		DTBImage:    *dtbPath,
		MTDImage:    *mtdPath,
		NetSocket:   *netSocket,
		SingleStep:  *singleStep,
		ExitOnECall: *exitOnECall,
		GenDTB:      *genDTB,
	}
	if memSizeSet {
		cfg.MemSize = uint32(*memSize)
	}
	if *configPath != "" {
		fileCfg, err := rv32.LoadConfig(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			return &initx.ExitError{Code: 1}
		}
		cfg.Merge(fileCfg)
	}
	if cfg.MemSize == 0 {
		cfg.MemSize = uint32(*memSize)
	}

	m := rv32.NewMachine(cfg.MemSize, cfg.RNGSeed)
	m.ExitOnECall = cfg.ExitOnECall
	m.PlayerID = cfg.PlayerID

	if err := loadImages(m, cfg); err != nil {
		slog.Error("failed to load guest images", "err", err)
		return &initx.ExitError{Code: 1}
	}

	var consoleWriters []io.Writer
	if *console {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("enable raw mode: %w", err)
			}
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
		m.UART.In = os.Stdin
		consoleWriters = append(consoleWriters, os.Stdout)
	}
	var mon *rv32.Monitor
	if *monitor {
		mon = rv32.NewMonitor(80, 25)
		defer func() {
			for _, line := range mon.Snapshot() {
				slog.Debug("console", "line", line)
			}
		}()
		consoleWriters = append(consoleWriters, mon)
	}
	switch len(consoleWriters) {
	case 0:
	case 1:
		m.UART.Out = consoleWriters[0]
	default:
		m.UART.Out = io.MultiWriter(consoleWriters...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NetSocket != "" {
		transport, err := rv32.DialUnixNetTransport(ctx, cfg.NetSocket)
		if err != nil {
			slog.Error("failed to connect network transport", "err", err)
			return &initx.ExitError{Code: 1}
		}
		defer transport.Close()
		m.Net = transport
	}

	for !m.ExitRequested {
		if cfg.SingleStep {
			slog.Debug("step", "pc", fmt.Sprintf("%#x", m.Hart.PC))
		}
		if err := m.Step(); err != nil {
			slog.Error("machine halted", "err", err)
			return &initx.ExitError{Code: 1}
		}
		if m.Syscon.LastCommand == rv32.SysconReboot {
			rv32.Reset(&m.Hart)
			m.Syscon.LastCommand = rv32.SysconNone
			m.ExitRequested = false
			if err := loadImages(m, cfg); err != nil {
				slog.Error("failed to reload guest images on reboot", "err", err)
				return &initx.ExitError{Code: 1}
			}
		}
	}

	if m.ExitCode != 0 {
		return &initx.ExitError{Code: m.ExitCode}
	}
	return nil
}

func loadImages(m *rv32.Machine, cfg *rv32.Config) error {
	if cfg.BootImage != "" {
		if err := m.LoadRawImage(cfg.BootImage, 0x80000000); err != nil {
			return err
		}
	}
	if cfg.ELFImage != "" {
		if err := m.LoadELF(cfg.ELFImage); err != nil {
			return err
		}
	}

	switch {
	case cfg.GenDTB:
		dtb, err := rv32.GenerateDTB(cfg.MemSize, "console=ttyS0")
		if err != nil {
			return err
		}
		m.AttachDTB(dtb)
	case cfg.DTBImage != "":
		dtb, err := rv32.LoadDTB(cfg.DTBImage)
		if err != nil {
			return err
		}
		m.AttachDTB(dtb)
	}

	if cfg.MTDImage != "" {
		mtd, err := rv32.LoadMTD(cfg.MTDImage)
		if err != nil {
			return err
		}
		m.AttachMTD(mtd)
	}

	return nil
}
