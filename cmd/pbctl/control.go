package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/discovery"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"github.com/hkolbeck/pixelblaze-go/internal/ui"
)

var sequencerModes = map[string]protocol.SequencerMode{
	"off":      protocol.SequencerOff,
	"shuffle":  protocol.SequencerShuffleAll,
	"playlist": protocol.SequencerPlaylist,
}

func init() {
	rootCmd.AddCommand(sequencerCmd)
	rootCmd.AddCommand(jumpCmd)
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(pixelsCmd)
	rootCmd.AddCommand(setControlCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(locateCmd)

	sequencerCmd.AddCommand(sequencerPlayCmd, sequencerPauseCmd, sequencerModeCmd)

	limitCmd.Flags().BoolVar(&saveSetting, "save", false, "Persist the value on the controller")
	pixelsCmd.Flags().BoolVar(&saveSetting, "save", false, "Persist the value on the controller")
	setControlCmd.Flags().BoolVar(&saveSetting, "save", false, "Persist the value on the controller")
}

// fireAndForget runs a command that gets no reply and reports success.
func fireAndForget(cmd *cobra.Command, title, message string, send func(c *client.Client) error) error {
	return withSession(cmd, title, func(ctx context.Context, s *session, p *ui.Printer) error {
		if err := send(s.client); err != nil {
			return err
		}
		p.Println(ui.SuccessMarker + " " + message)
		return nil
	})
}

var sequencerCmd = &cobra.Command{
	Use:   "sequencer",
	Short: "Control the pattern sequencer",
}

var sequencerPlayCmd = &cobra.Command{
	Use:   "play",
	Short: "Start the sequencer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fireAndForget(cmd, "Sequencer", "Sequencer running", (*client.Client).PlaySequence)
	},
}

var sequencerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the sequencer on the current pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fireAndForget(cmd, "Sequencer", "Sequencer paused", (*client.Client).PauseSequence)
	},
}

var sequencerModeCmd = &cobra.Command{
	Use:       "mode <off|shuffle|playlist>",
	Short:     "Select how the sequencer advances",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"off", "shuffle", "playlist"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := sequencerModes[args[0]]
		if !ok {
			return fmt.Errorf("invalid sequencer mode %q: want off, shuffle or playlist", args[0])
		}
		return fireAndForget(cmd, "Sequencer", "Sequencer mode set to "+mode.String(), func(c *client.Client) error {
			return c.SetSequencerMode(mode)
		})
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump [index]",
	Short: "Jump to a playlist position, or show the current one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			idx, err := strconv.Atoi(args[0])
			if err != nil || idx < 0 {
				return fmt.Errorf("invalid playlist position %q", args[0])
			}
			return fireAndForget(cmd, "Jump", "Jumped to position "+args[0], func(c *client.Client) error {
				return c.SetPlaylistIndex(idx)
			})
		}

		return withSession(cmd, "Playlist position", func(ctx context.Context, s *session, p *ui.Printer) error {
			var idx int
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.GetPlaylistIndex(func(i int) {
					idx = i
					done()
				}, fail)
			})
			if err != nil {
				return err
			}
			p.PrintSuccess("Playlist position", map[string]string{"Position": strconv.Itoa(idx)})
			return nil
		})
	},
}

var limitCmd = &cobra.Command{
	Use:   "limit <0-100>",
	Short: "Set the brightness limit percentage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := strconv.Atoi(args[0])
		if err != nil || limit < 0 || limit > 100 {
			return fmt.Errorf("invalid brightness limit %q: must be between 0 and 100", args[0])
		}
		return fireAndForget(cmd, "Brightness limit", fmt.Sprintf("Brightness limit set to %d%%", limit), func(c *client.Client) error {
			return c.SetBrightnessLimit(limit, saveSetting)
		})
	},
}

var pixelsCmd = &cobra.Command{
	Use:   "pixels <count>",
	Short: "Set the number of pixels driven",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid pixel count %q", args[0])
		}
		return fireAndForget(cmd, "Pixel count", "Pixel count set to "+args[0], func(c *client.Client) error {
			return c.SetPixelCount(uint32(n), saveSetting)
		})
	},
}

var setControlCmd = &cobra.Command{
	Use:   "set-control <name> <value>",
	Short: "Set a control on the running pattern",
	Example: `  pbctl set-control sliderSpeed 0.8 --host desk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid control value %q", args[1])
		}
		return fireAndForget(cmd, "Control", fmt.Sprintf("%s set to %.3f", args[0], value), func(c *client.Client) error {
			return c.SetCurrentPatternControl(args[0], value, saveSetting)
		})
	},
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List other controllers the controller can see",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, "Peers", func(ctx context.Context, s *session, p *ui.Printer) error {
			var peers []protocol.Peer
			err := s.await(ctx, func(done func(), fail func(client.FailureCause)) error {
				return s.client.GetPeers(func(got []protocol.Peer) {
					peers = got
					done()
				}, fail)
			})
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				p.Println("No peers")
				return nil
			}

			rows := make([][]string, 0, len(peers))
			for _, peer := range peers {
				role := "leader"
				if peer.IsFollowing {
					role = "follower"
				}
				rows = append(rows, []string{peer.Name, peer.IPAddress, peer.Version, role})
			}
			p.PrintTable(rows)
			return nil
		})
	},
}

// locateCmd finds one controller by name or chip id
var locateCmd = &cobra.Command{
	Use:   "locate <name-or-chip-id>",
	Short: "Find one controller on the network and save its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ui.NewPrinter(nil)

		scanner := discovery.NewScanner()
		if scanTimeout > 0 {
			scanner.Timeout = time.Duration(scanTimeout) * time.Second
		}
		scanner.Names = append(scanner.Names, args[0])

		d, err := scanner.FindDevice(cmd.Context(), args[0])
		if err != nil {
			p.PrintError("Controller not found", err, []string{
				"Check the name with 'pbctl scan'",
				"Try increasing --scan-timeout",
			})
			return err
		}

		registryRef.UpdateDeviceLastSeen(d.Name, d.IP, 0, "")
		if err := saveRegistry(registryRef); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		p.PrintSuccess("Found "+d.Name, map[string]string{
			"Address":   d.IP,
			"Chip ID":   d.ChipID,
			"Websocket": d.WebsocketURL(),
		})
		return nil
	},
}

func init() {
	locateCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Search timeout in seconds")
}
