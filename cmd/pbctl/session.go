package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/config"
	"github.com/hkolbeck/pixelblaze-go/internal/discovery"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
	"github.com/hkolbeck/pixelblaze-go/internal/transport"
)

// Global flags
var (
	hostFlag    string
	configPath  string
	logLevel    string
	logFile     string
	cmdTimeout  time.Duration
	registryRef *config.Registry
)

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Controller address or saved device name")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default "+config.PathEnvVar+" or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default from "+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stdout")
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 10*time.Second, "Time allowed for each controller request")
}

// setupLogging loads the registry and initializes the logger before any
// command runs.
func setupLogging(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	registryRef = reg

	file := logFile
	if file == "" && reg.Preferences != nil {
		file = reg.Preferences.LogFile
	}
	return logging.InitializeWithOptions(logging.Options{Level: logLevel, File: file})
}

func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadRegistryFrom(configPath)
	}
	return config.LoadRegistry()
}

func saveRegistry(reg *config.Registry) error {
	if configPath != "" {
		return reg.SaveTo(configPath)
	}
	return reg.Save()
}

// session is one connected client plus the resources behind it.
type session struct {
	name   string
	host   string
	port   int
	ws     *transport.WebSocket
	store  store.ChunkStore
	client *client.Client
}

// resolveTarget picks the controller to talk to: --host, then the default
// device, then a controller found by a short discovery scan if it is the
// only one on the network.
func resolveTarget(ctx context.Context, reg *config.Registry) (name, host string, port int, err error) {
	host, port, err = reg.ResolveHost(hostFlag)
	if err == nil {
		name = hostFlag
		if name == "" && reg.Preferences != nil {
			name = reg.Preferences.DefaultDevice
		}
		return name, host, port, nil
	}

	fmt.Println("No controller specified, attempting auto-discovery...")
	var devices []*discovery.Device
	var scanErr error
	if reg.Preferences != nil && reg.Preferences.DiscoverTimeout > 0 {
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
		devices, scanErr = scanner.ScanForDevices(ctx)
	} else {
		devices, scanErr = discovery.QuickScan(ctx)
	}
	if scanErr != nil {
		return "", "", 0, fmt.Errorf("discovery failed: %w", scanErr)
	}

	switch len(devices) {
	case 0:
		return "", "", 0, fmt.Errorf("no controllers found. Use --host to specify one")
	case 1:
		d := devices[0]
		fmt.Printf("Found %s\n\n", d)
		return d.Name, d.IP, 0, nil
	default:
		for i, d := range devices {
			fmt.Printf("%d. %s\n", i+1, d)
		}
		return "", "", 0, fmt.Errorf("multiple controllers found. Use --host to pick one")
	}
}

// openSession connects to the selected controller. Close must be called.
func openSession(ctx context.Context, w client.Watcher, opts ...client.Option) (*session, error) {
	reg := registryRef
	name, host, port, err := resolveTarget(ctx, reg)
	if err != nil {
		return nil, err
	}

	// The store asks the client which buffers are garbage; the client is
	// created after the store.
	var c *client.Client
	st, err := reg.Store.OpenStore(ctx, func(key string) bool {
		return c != nil && c.IsGarbage(key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open buffer store: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cmdTimeout)
	defer cancel()

	url := transport.URLForHostPort(host, port)
	logging.Debug("Connecting", zap.String("url", url), zap.String("device", name))
	ws, err := transport.Dial(dialCtx, url)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c = client.New(ws, st, w, reg.ClientConfig(), opts...)
	return &session{name: name, host: host, port: port, ws: ws, store: st, client: c}, nil
}

// await runs one request to completion within --timeout.
func (s *session) await(ctx context.Context, submit func(done func(), fail func(client.FailureCause)) error) error {
	ctx, cancel := context.WithTimeout(ctx, cmdTimeout)
	defer cancel()
	return s.client.Await(ctx, submit)
}

// remember records the controller in the registry when it was named.
func (s *session) remember(version string) {
	if s.name == "" {
		return
	}
	registryRef.UpdateDeviceLastSeen(s.name, s.host, s.port, version)
	if err := saveRegistry(registryRef); err != nil {
		logging.Warn("Failed to save configuration", zap.Error(err))
	}
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		logging.Debug("Close failed", zap.Error(err))
	}
	closeStore(s.store)
}

func closeStore(st store.ChunkStore) {
	if c, ok := st.(io.Closer); ok {
		_ = c.Close()
	}
}

// troubleshooting suggests fixes for a failed command.
func troubleshooting(err error) []string {
	var failure *client.FailureError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return []string{
			"Increase --timeout for slow networks",
			"Check the controller is powered and on the same network",
		}
	case errors.As(err, &failure) && failure.Cause == client.BufferAllocFail:
		return []string{
			"Raise store.buffers or store.buffer_bytes in the configuration file",
			"Use store.kind: file for large replies",
		}
	case errors.As(err, &failure) && failure.Cause == client.TimedOut:
		return []string{
			"Raise client.max_response_wait in the configuration file",
			"The controller may be busy rendering a heavy pattern",
		}
	case errors.Is(err, client.ErrConnectionFailed), client.IsFailure(err, client.ConnectionLost):
		return []string{
			"Check the controller is powered and reachable",
			"Run 'pbctl scan' to find its current address",
		}
	}
	return nil
}
