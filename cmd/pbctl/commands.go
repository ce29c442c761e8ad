package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/discovery"
	"github.com/hkolbeck/pixelblaze-go/internal/emulator"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/metrics"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"github.com/hkolbeck/pixelblaze-go/internal/ui"
)

// Command flags
var (
	scanTimeout   int
	scanNoSave    bool
	previewOut    string
	saveSetting   bool
	metricsAddr   string
	watchInterval time.Duration
	watchPreviews bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(playlistCmd)
	rootCmd.AddCommand(controlsCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(brightnessCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(watchCmd)
}

// scanCmd discovers controllers on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Pixelblaze controllers on the network",
	Long: `Scan for Pixelblaze controllers using mDNS/DNS-SD discovery.

Discovered controllers are saved to the configuration file under their
name so later commands can use --host <name>.`,
	Example: `  # Scan for 5 seconds (default)
  pbctl scan

  # Longer scan without saving results
  pbctl scan --scan-timeout 15 --no-save`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Scan timeout in seconds (default from configuration)")
	scanCmd.Flags().BoolVar(&scanNoSave, "no-save", false, "Do not save discovered controllers")
}

func runScan(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(nil)

	scanner := discovery.NewScanner()
	if registryRef.Preferences != nil && registryRef.Preferences.DiscoverTimeout > 0 {
		scanner.Timeout = time.Duration(registryRef.Preferences.DiscoverTimeout) * time.Second
	}
	if scanTimeout > 0 {
		scanner.Timeout = time.Duration(scanTimeout) * time.Second
	}
	for name := range registryRef.Devices {
		scanner.Names = append(scanner.Names, name)
	}

	p.Printf("Scanning for Pixelblaze controllers (timeout: %s)...\n\n", scanner.Timeout)

	devices, err := scanner.ScanForDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		p.PrintError("No controllers found", nil, []string{
			"Ensure the controller is powered on and joined to your network",
			"Check that discovery is enabled in the controller settings",
			"Try increasing --scan-timeout for slower networks",
			"Use --host to specify an address manually if discovery fails",
		})
		return nil
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Name, d.IP, d.ChipID})
		if !scanNoSave {
			registryRef.UpdateDeviceLastSeen(d.Name, d.IP, 0, "")
		}
	}

	p.Printf("Found %d controller(s):\n\n", len(devices))
	p.PrintTable(rows)
	p.Println("")

	if !scanNoSave {
		if err := saveRegistry(registryRef); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		p.Println("Saved. Use 'pbctl settings --host <name>' to query a controller.")
	}
	return nil
}

// withSession opens a session, runs fn and reports failures in an error box.
func withSession(cmd *cobra.Command, title string, fn func(ctx context.Context, s *session, p *ui.Printer) error) error {
	p := ui.NewPrinter(nil)
	ctx := cmd.Context()

	s, err := openSession(ctx, nil)
	if err != nil {
		p.PrintError(title+" failed", err, troubleshooting(err))
		return err
	}
	defer s.Close()

	if err := fn(ctx, s, p); err != nil {
		p.PrintError(title+" failed", err, troubleshooting(err))
		return err
	}
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the round trip to a controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Ping", func(ctx context.Context, s *session, p *ui.Printer) error {
			var rtt time.Duration
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.Ping(func(d time.Duration) {
					rtt = d
					done()
				}, fail)
			})
			if err != nil {
				return err
			}
			p.PrintSuccess("Controller responded", map[string]string{
				"Host":       s.host,
				"Round trip": rtt.String(),
			})
			return nil
		})
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the patterns stored on a controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Patterns", func(ctx context.Context, s *session, p *ui.Printer) error {
			var rows [][]string
			var iterErr error
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.GetPatterns(func(it *protocol.PatternIterator) {
					for it.Next() {
						pat := it.Pattern()
						rows = append(rows, []string{pat.ID, pat.Name})
					}
					iterErr = it.Err()
					done()
				}, fail)
			})
			if err != nil {
				return err
			}
			if iterErr != nil {
				return fmt.Errorf("pattern list truncated: %w", iterErr)
			}

			p.PrintHeader("Patterns", "pbctl patterns", map[string]string{"Controller": s.host})
			p.PrintTable(rows)
			p.Printf("\n%d pattern(s)\n", len(rows))
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show controller settings and the running pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Settings", func(ctx context.Context, s *session, p *ui.Printer) error {
			var settings *protocol.Settings
			var seq *protocol.SequencerState
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				both := func() {
					if settings != nil && seq != nil {
						done()
					}
				}
				return s.client.GetSystemState(client.SystemState{
					Settings:  func(v *protocol.Settings) { settings = v; both() },
					Sequencer: func(v *protocol.SequencerState) { seq = v; both() },
				}, fail)
			})
			if err != nil {
				return err
			}

			s.remember(settings.Version)
			p.PrintSuccess(settings.Name, map[string]string{
				"Version":        settings.Version,
				"Pixels":         strconv.Itoa(settings.PixelCount),
				"Brightness":     fmt.Sprintf("%.2f", settings.Brightness),
				"Max brightness": fmt.Sprintf("%d%%", settings.MaxBrightness),
				"Pattern":        seq.ActiveProgram.Name,
				"Sequencer":      fmt.Sprintf("%v (running: %v)", seq.SequencerMode, seq.RunSequencer),
			})
			return nil
		})
	},
}

var playlistCmd = &cobra.Command{
	Use:   "playlist [name]",
	Short: "Show a playlist, the default one if no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withSession(cmd, "Playlist", func(ctx context.Context, s *session, p *ui.Printer) error {
			var playlist *protocol.Playlist
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.GetPlaylist(name, func(pl *protocol.Playlist) {
					playlist = pl
					done()
				}, fail)
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(playlist.Items))
			for i, item := range playlist.Items {
				marker := " "
				if i == playlist.Position {
					marker = ui.ActiveMarker
				}
				rows = append(rows, []string{marker + " " + strconv.Itoa(i), item.ID,
					(time.Duration(item.DurationMs) * time.Millisecond).String()})
			}
			p.PrintHeader("Playlist", "pbctl playlist", map[string]string{"Controller": s.host, "Playlist": playlist.ID})
			p.PrintTable(rows)
			return nil
		})
	},
}

var controlsCmd = &cobra.Command{
	Use:   "controls [pattern-id]",
	Short: "Show a pattern's controls, the running pattern's if no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Controls", func(ctx context.Context, s *session, p *ui.Printer) error {
			var id string
			var controls protocol.Controls
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				handle := func(patternID string, c protocol.Controls) {
					id, controls = patternID, c
					done()
				}
				if len(args) == 1 {
					return s.client.GetPatternControls(args[0], handle, fail)
				}
				return s.client.GetCurrentPatternControls(handle, fail)
			})
			if err != nil {
				return err
			}

			details := make(map[string]string, len(controls))
			for _, c := range controls {
				details[c.Name] = fmt.Sprintf("%.3f", c.Value)
			}
			p.PrintSuccess("Pattern "+id, details)
			return nil
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <pattern-id>",
	Short: "Save a pattern's preview image as JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		out := previewOut
		if out == "" {
			out = id + ".jpg"
		}
		return withSession(cmd, "Preview", func(ctx context.Context, s *session, p *ui.Printer) error {
			var written int64
			var writeErr error
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.GetPreviewImage(id, func(_ string, jpeg io.Reader) {
					written, writeErr = writeFile(out, jpeg)
					done()
				}, fail)
			})
			if err != nil {
				return err
			}
			if writeErr != nil {
				return writeErr
			}
			p.PrintSuccess("Preview saved", map[string]string{"File": out, "Bytes": strconv.FormatInt(written, 10)})
			return nil
		})
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "", "Output file (default <pattern-id>.jpg)")
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness <0-1>",
	Short: "Set controller brightness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.ParseFloat(args[0], 64)
		if err != nil || level < 0 || level > 1 {
			return fmt.Errorf("invalid brightness %q: must be between 0 and 1", args[0])
		}
		return withSession(cmd, "Brightness", func(ctx context.Context, s *session, p *ui.Printer) error {
			if err := s.client.SetBrightness(level, saveSetting); err != nil {
				return err
			}
			p.PrintSuccess("Brightness set", map[string]string{
				"Brightness": fmt.Sprintf("%.2f", level),
				"Saved":      strconv.FormatBool(saveSetting),
			})
			return nil
		})
	},
}

func init() {
	brightnessCmd.Flags().BoolVar(&saveSetting, "save", false, "Persist the value on the controller")
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Advance to the next pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Next pattern", func(ctx context.Context, s *session, p *ui.Printer) error {
			if err := s.client.NextPattern(); err != nil {
				return err
			}
			p.Println(ui.SuccessMarker + " Advanced to the next pattern")
			return nil
		})
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Step back to the previous playlist pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Previous pattern", func(ctx context.Context, s *session, p *ui.Printer) error {
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.PrevPattern(done, fail)
			})
			if err != nil {
				return err
			}
			p.Println(ui.SuccessMarker + " Stepped back to the previous pattern")
			return nil
		})
	},
}

// watchCmd runs the live telemetry view
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show live telemetry and preview frames",
	Long: `Connect to a controller and display its pushed statistics, the running
pattern and a live preview strip until q is pressed.

With --metrics-addr, request and reconnect metrics are served in the
Prometheus text format at /metrics for as long as the view runs.`,
	Example: `  pbctl watch --host desk
  pbctl watch --host desk --metrics-addr :9110`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 20*time.Millisecond, "Poll interval")
	watchCmd.Flags().BoolVar(&watchPreviews, "previews", true, "Ask the controller to stream preview frames")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(nil)
	ctx := cmd.Context()

	state := ui.NewWatchState()
	label := hostFlag
	if label == "" {
		label = "default"
	}
	collector := metrics.NewCollector(prometheus.Labels{"host": label})

	s, err := openSession(ctx, state, client.WithObserver(collector))
	if err != nil {
		p.PrintError("Watch failed", err, troubleshooting(err))
		return err
	}
	defer s.Close()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(collector), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logging.Info("Serving metrics", zap.String("addr", metricsAddr))
	}

	if watchPreviews {
		if err := s.client.SendFramePreviews(true); err != nil {
			return fmt.Errorf("failed to enable previews: %w", err)
		}
	}

	title := s.host
	if s.name != "" && s.name != s.host {
		title = s.name + " (" + s.host + ")"
	}
	final, err := tea.NewProgram(ui.NewWatchModel(title, s.client, state, watchInterval), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("watch error: %w", err)
	}
	if m, ok := final.(ui.WatchModel); ok && m.Err() != nil {
		p.PrintError("Watch stopped", m.Err(), troubleshooting(client.ErrConnectionFailed))
		return m.Err()
	}

	if watchPreviews {
		_ = s.client.SendFramePreviews(false)
	}
	return nil
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}

var (
	emulatePort       int
	emulateName       string
	emulateFrameBytes int
)

// emulateCmd serves a simulated controller for offline use
var emulateCmd = &cobra.Command{
	Use:    "emulate",
	Short:  "Serve an emulated controller",
	Hidden: true,
	Long: `Serve a simulated controller with a few demo patterns on the local
machine, for trying pbctl without hardware.`,
	Example: `  pbctl emulate --port 8181 &
  pbctl patterns --host 127.0.0.1:8181`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := emulator.NewController(emulateName, emulator.DemoPatterns())
		if err != nil {
			return err
		}
		ctrl.SetFrameBytes(emulateFrameBytes)

		fmt.Printf("Emulated controller %q on port %d (Ctrl+C to stop)\n", emulateName, emulatePort)
		return emulator.New(&emulator.Config{Port: emulatePort}, ctrl).Start()
	},
}

func init() {
	emulateCmd.Flags().IntVar(&emulatePort, "port", emulator.DefaultPort, "Listen port")
	emulateCmd.Flags().StringVar(&emulateName, "name", "emulated", "Controller name")
	emulateCmd.Flags().IntVar(&emulateFrameBytes, "frame-bytes", emulator.DefaultFrameBytes, "Largest binary frame body")
	rootCmd.AddCommand(emulateCmd)
}
