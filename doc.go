// Package audiotap captures application, window, and display audio through a
// pluggable OS capture provider and turns it into a processed sample stream.
//
// The entry point is [Engine]. Wrap a platform [Provider], start a capture
// against a resolved target, and consume audio through a subscription or a
// pull [Stream]:
//
//	engine, err := audiotap.New(provider)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Shutdown()
//
//	if err := engine.StartAppCapture(audiotap.ByName("Spotify")); err != nil {
//		log.Fatal(err)
//	}
//	unsubscribe := engine.Subscribe(audiotap.Listener{
//		OnAudio: func(sample *audiotap.EnhancedAudioSample) {
//			// sample.Data, sample.RMS, sample.Peak
//		},
//	})
//	defer unsubscribe()
//
// Targets are resolved from loose identifiers (process id, name, bundle id)
// with substring fallback. Failed resolution returns a structured [Error]
// listing the available source names.
//
// Beyond the capture session the engine carries scheduled and on-demand WAV
// recording with optional S3 upload, silence detection with webhook and email
// alerts, and a local WebSocket monitor; all of it is driven by a JSON
// configuration file and off by default.
package audiotap
