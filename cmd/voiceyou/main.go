package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rojolang/voiceyou-sdk-go/pkg/voiceyou"
	"github.com/spf13/cobra"
)

var (
	verbose   bool
	apiURL    string
	outputDir string
	deviceID  int

	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "voiceyou",
		Short:         "VoiceYou recorder CLI",
		Long:          "Record, upload and browse voice notes against a VoiceYou upload service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Upload service base URL")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for downloaded recordings")
	rootCmd.PersistentFlags().IntVar(&deviceID, "device", -1, "Input device ID (default device when negative)")

	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(voicesCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		red.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		voiceyou.GetGlobalLogger().WithError(err).Debug("CLI execution failed")
		os.Exit(1)
	}
}

func setupLogging() {
	cfg := loadConfig()
	logCfg := voiceyou.DefaultLogConfig()
	logCfg.Level = cfg.LogLevel()
	logCfg.Output = os.Stderr
	logCfg.FilePath = cfg.LogFile
	if verbose {
		logCfg.Level = voiceyou.DebugLevel
	} else if cfg.DebugLevel == "INFO" {
		// Keep the terminal for the recorder UI unless asked otherwise.
		logCfg.Level = voiceyou.WarnLevel
	}
	voiceyou.SetGlobalLogger(voiceyou.NewLogger(logCfg))
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() *voiceyou.Config {
	cfg := voiceyou.NewConfig()
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if deviceID >= 0 {
		id := deviceID
		cfg.AudioDeviceID = &id
	}
	return cfg
}

func newClient() (*voiceyou.Client, error) {
	cfg := loadConfig()
	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, voiceyou.NewConfigError(issues[0])
	}
	client := voiceyou.NewClient(cfg, voiceyou.NewAudioConfig())
	client.AddNoticeHandler(printNotice)
	return client, nil
}

func printNotice(n voiceyou.Notice) {
	if n.IsZero() {
		return
	}
	switch n.Severity {
	case voiceyou.NoticeSuccess:
		green.Printf("✓ %s\n", n.Text)
	case voiceyou.NoticeError:
		red.Printf("✗ %s\n", n.Text)
	default:
		cyan.Printf("• %s\n", n.Text)
	}
}

func userMessage(err error) string {
	if ve, ok := err.(*voiceyou.VoiceError); ok {
		return ve.UserMessage()
	}
	return err.Error()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func recordCmd() *cobra.Command {
	var (
		duration time.Duration
		upload   bool
		download bool
		play     bool
		snapshot string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note",
		Long:  "Record from the microphone until the duration elapses or Ctrl+C, then optionally play, save or upload it",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			removeWave := client.Visualizer().AddFrameHandler(
				voiceyou.CreateTerminalWaveformHandler(os.Stdout, 48, 100*time.Millisecond, client.Elapsed))

			ctx, stop := signalContext()
			if err := client.StartRecording(ctx); err != nil {
				stop()
				return err
			}
			yellow.Println("● Recording... press Ctrl+C to stop")

			var timeout <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				timeout = timer.C
			}
			select {
			case <-ctx.Done():
			case <-timeout:
			}
			stop()

			if err := client.StopRecording(); err != nil {
				return err
			}
			removeWave()
			fmt.Println()

			blob := client.Session().FinalBlob()
			fmt.Printf("Recorded %s (%s)\n", client.Elapsed(), voiceyou.FormatFileSize(int64(blob.Size())))

			if snapshot != "" {
				if err := client.Visualizer().SavePNG(snapshot); err != nil {
					return err
				}
				fmt.Printf("Waveform saved to %s\n", snapshot)
			}

			work, cancel := signalContext()
			defer cancel()

			if play {
				fmt.Println("Playing back...")
				if err := client.PlayRecording(work); err != nil && work.Err() == nil {
					return err
				}
			}
			if download {
				if _, err := client.DownloadRecording(); err != nil {
					return err
				}
			}
			if upload {
				result, err := client.UploadRecording(work)
				if err != nil {
					return err
				}
				fmt.Printf("URL: %s\n", result.RemoteURL)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long (0 waits for Ctrl+C)")
	cmd.Flags().BoolVarP(&upload, "upload", "u", false, "Upload the recording when it stops")
	cmd.Flags().BoolVar(&download, "download", false, "Save the recording to the output directory")
	cmd.Flags().BoolVarP(&play, "play", "p", false, "Play the recording back before anything else")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Write the last waveform frame to this PNG file")
	return cmd
}

func voicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Browse uploaded recordings",
	}

	cmd.AddCommand(voicesListCmd())
	cmd.AddCommand(voicesPlayCmd())
	cmd.AddCommand(voicesDownloadCmd())
	cmd.AddCommand(voicesDeleteCmd())
	cmd.AddCommand(voicesWatchCmd())
	return cmd
}

func voicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			entries, err := client.RefreshVoices(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				yellow.Println("No voice recordings found")
				return nil
			}

			fmt.Printf("Voice recordings (%d):\n", len(entries))
			for _, e := range entries {
				fmt.Printf("  %-40s %10s  %s\n", e.FileName, voiceyou.FormatFileSize(e.SizeBytes), voiceyou.FormatUploadDate(e.LastModified))
				if verbose {
					fmt.Printf("    %s\n", e.URL)
				}
			}
			return nil
		},
	}
}

// lookupEntry refreshes the catalog and finds a recording by file name.
func lookupEntry(ctx context.Context, client *voiceyou.Client, name string) (voiceyou.VoiceEntry, error) {
	entries, err := client.RefreshVoices(ctx)
	if err != nil {
		return voiceyou.VoiceEntry{}, err
	}
	for _, e := range entries {
		if e.FileName == name {
			return e, nil
		}
	}
	return voiceyou.VoiceEntry{}, voiceyou.NewClientError(fmt.Sprintf("no recording named %q", name))
}

func voicesPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play [file-name]",
		Short: "Play an uploaded recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			entry, err := lookupEntry(ctx, client, args[0])
			if err != nil {
				return err
			}

			catalog := client.Catalog()
			if _, err := catalog.Play(ctx, entry); err != nil {
				return err
			}
			fmt.Printf("Playing %s...\n", entry.FileName)

			select {
			case <-catalog.PlaybackDone():
			case <-ctx.Done():
				catalog.Stop()
			}
			return nil
		},
	}
}

func voicesDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download [file-name]",
		Short: "Download an uploaded recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			entry, err := lookupEntry(ctx, client, args[0])
			if err != nil {
				return err
			}
			path, err := client.Catalog().Download(ctx, entry, client.Config().OutputDir)
			if err != nil {
				return err
			}
			green.Printf("✓ Saved %s\n", path)
			return nil
		},
	}
}

func voicesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [file-name]",
		Short: "Delete an uploaded recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			entry, err := lookupEntry(ctx, client, args[0])
			if err != nil {
				return err
			}
			if err := client.Catalog().Delete(ctx, entry); err != nil {
				return err
			}
			green.Printf("✓ Deleted %s\n", entry.FileName)
			return nil
		},
	}
}

func voicesWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow uploads and deletions as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			watch := func(stream *voiceyou.EventStream) {
				stream.AddConnectionHandler(func(state voiceyou.ConnectionState) {
					switch state {
					case voiceyou.Connected:
						green.Printf("● Watching %s\n", client.API().BaseURL())
					case voiceyou.Reconnecting:
						yellow.Println("● Connection lost, reconnecting...")
					}
				})
				stream.AddEventHandler(func(ev voiceyou.VoiceEvent) {
					switch ev.Type {
					case voiceyou.EventVoiceUploaded:
						green.Printf("+ %s\n", ev.FileName)
					case voiceyou.EventVoiceDeleted:
						red.Printf("- %s\n", ev.FileName)
					default:
						fmt.Printf("? %s %s\n", ev.Type, ev.FileName)
					}
				})
			}

			err = client.WatchVoices(ctx, watch)
			if ctx.Err() != nil {
				fmt.Printf("%d recordings at last refresh\n", client.Catalog().Len())
				return nil
			}
			return err
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the upload service",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Cleanup()

			ctx, stop := signalContext()
			defer stop()

			status, err := client.CheckHealth(ctx)
			if err != nil {
				return err
			}
			green.Printf("✓ %s is %s\n", client.API().BaseURL(), status.Status)
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
		Long:  "Commands for listing and testing audio devices",
	}

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesTestCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			dm := voiceyou.NewAudioDeviceManager(nil)
			if err := dm.RefreshDevices(); err != nil {
				return err
			}

			printGroup := func(title string, devices []voiceyou.AudioDevice, channels func(voiceyou.AudioDevice) int) {
				if len(devices) == 0 {
					return
				}
				fmt.Printf("\n%s:\n", title)
				for _, d := range devices {
					marker := ""
					if d.IsDefault {
						marker = green.Sprint(" (Default)")
					}
					fmt.Printf("  %d: %s%s - %d channels (%.0f Hz)\n", d.ID, d.Name, marker, channels(d), d.DefaultSampleRate)
				}
			}

			printGroup("Input Devices", dm.GetInputDevices(), func(d voiceyou.AudioDevice) int { return d.MaxInputChannels })
			printGroup("Output Devices", dm.GetOutputDevices(), func(d voiceyou.AudioDevice) int { return d.MaxOutputChannels })
			return nil
		},
	}
}

func devicesTestCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "test [device-id]",
		Short: "Test a specific input device",
		Long:  "Record briefly from an input device and report the levels it picked up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm := voiceyou.NewAudioDeviceManager(nil)
			if err := dm.RefreshDevices(); err != nil {
				return err
			}

			var id int
			if len(args) > 0 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					return voiceyou.NewClientError(fmt.Sprintf("invalid device ID %q", args[0]))
				}
				id = parsed
			} else {
				device, err := dm.GetDefaultInputDevice()
				if err != nil {
					return err
				}
				id = device.ID
			}

			device, err := dm.GetDeviceByID(id)
			if err != nil {
				return err
			}
			fmt.Printf("Device Information:\n%s\n", voiceyou.DeviceInfo(*device))

			fmt.Printf("Recording %s from device %d...\n", duration, id)
			result, err := dm.TestInputDevice(voiceyou.NewPortAudioMicrophone(), id, duration)
			if err != nil {
				return err
			}

			fmt.Printf("Callbacks: %d, Samples: %d\n", result.Callbacks, result.Samples)
			fmt.Printf("Peak: %.4f, RMS: %.4f\n", result.PeakLevel, result.RMSLevel)
			if result.HasSignal() {
				green.Println("✓ Signal detected")
			} else {
				yellow.Println("! No signal detected, check the microphone")
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 3*time.Second, "How long to record")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			cfg.PrintConfig()

			audioConfig := voiceyou.NewAudioConfig()
			fmt.Println("\nAudio Config:")
			fmt.Printf("  Sample Rate: %d Hz\n", audioConfig.SampleRate)
			fmt.Printf("  Channels: %d\n", audioConfig.Channels)
			fmt.Printf("  Buffer Size: %d samples\n", audioConfig.BufferSize)
			fmt.Printf("  FFT Size: %d\n", audioConfig.FFTSize)

			if issues := cfg.Validate(); len(issues) > 0 {
				fmt.Println()
				for _, issue := range issues {
					red.Printf("✗ %s\n", issue)
				}
				return
			}
			green.Println("\n✓ Configuration is valid")
		},
	}
}
