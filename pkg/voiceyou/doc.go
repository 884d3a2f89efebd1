// Package voiceyou records voice notes from a microphone, shows a live
// frequency waveform while recording, uploads finished recordings to an
// object-store backend and lists what has been uploaded.
//
// # Overview
//
// The SDK is built from four pieces:
//   - AudioCaptureSession owns the microphone and the idle/recording/stopped cycle
//   - AudioVisualizer draws the live waveform onto a fixed canvas
//   - UploadGateway sends a finished recording to POST /api/upload
//   - VoiceCatalog mirrors GET /api/voices and plays entries back
//
// Client wires them together with an inline notice that reports the outcome
// of every action. EventStream follows the backend's change feed so a
// catalog can stay current while other clients upload (see VoiceCatalog.Watch).
//
// # Quick Start
//
//	config := voiceyou.NewConfig()
//	client := voiceyou.NewClient(config, voiceyou.NewAudioConfig())
//	defer client.Cleanup()
//
//	if err := client.StartRecording(ctx); err != nil {
//		log.Fatal(err)
//	}
//	time.Sleep(5 * time.Second)
//	if err := client.StopRecording(); err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := client.UploadRecording(ctx)
//	if err != nil {
//		fmt.Println(client.Notice().Text)
//		return
//	}
//	fmt.Println(result.RemoteURL)
//
// # Configuration
//
// Config is read from the environment (and a .env file when present):
//
//	VOICEYOU_API_URL          backend base URL (default http://localhost:3000)
//	VOICEYOU_HTTP_TIMEOUT     request timeout, e.g. 30s
//	VOICEYOU_DEBUG_LEVEL      TRACE, DEBUG, INFO, WARNING or ERROR
//	VOICEYOU_LOG_FILE         optional rotating log file
//	VOICEYOU_OUTPUT_DIR       where downloads are written
//	VOICEYOU_AUDIO_DEVICE_ID  PortAudio input device index
//	VOICEYOU_CANVAS_WIDTH     waveform canvas width (default 500)
//	VOICEYOU_CANVAS_HEIGHT    waveform canvas height (default 150)
//	VOICEYOU_MAX_RECONNECT_ATTEMPTS  event stream dials before giving up (default 5)
//	VOICEYOU_RECONNECT_DELAY         pause between dials (default 1s)
//
// # Errors
//
// Every failure is a *VoiceError carrying one of the ErrCode* constants and
// matches the corresponding sentinel with errors.Is:
//
//	if errors.Is(err, voiceyou.ErrUnreachable) {
//		// the backend did not answer
//	}
//
// Requests are never retried; a failed upload leaves the session stopped so
// the recording can be sent again.
package voiceyou
