package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/echonote-ai/echonote/pkg/capture"
	"github.com/echonote-ai/echonote/pkg/language"
	"github.com/echonote-ai/echonote/pkg/session"
	"github.com/echonote-ai/echonote/pkg/stt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using system environment")
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	baseURL := os.Getenv("LISTEN_BASE_URL")
	model := os.Getenv("LISTEN_MODEL")
	if model == "" {
		model = "nova-3"
	}

	langs := language.ParseList(os.Getenv("LISTEN_LANGUAGES"))
	if len(langs) == 0 {
		langs = []language.Language{language.New("en")}
	}

	kind := stt.KindFromURLAndLanguages(baseURL, langs, model)
	apiKey := ""
	if p, ok := stt.ProviderFromURL(baseURL); ok {
		apiKey = os.Getenv(p.EnvKeyName())
	} else if !stt.IsTranscribeProxy(baseURL) {
		apiKey = os.Getenv(stt.ProviderDeepgram.EnvKeyName())
	}

	engine, err := capture.NewEngine(logger)
	if err != nil {
		logger.Error("audio engine init failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	dataDir := os.Getenv("ECHONOTE_DATA_DIR")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".echonote")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("could not create data dir", "error", err)
		os.Exit(1)
	}

	// Refresh the device sidecar with whatever is plugged in right now.
	priorities := capture.NewPriorityManager(mustLoadPriorities(dataDir, logger))
	if inputs, err := engine.ListInputs(); err == nil {
		for _, d := range priorities.Ordered(inputs) {
			priorities.RememberDevice(d.UID, d.Name, true)
		}
	}
	if outputs, err := engine.ListOutputs(); err == nil {
		for _, d := range priorities.Ordered(outputs) {
			priorities.RememberDevice(d.UID, d.Name, false)
		}
	}
	if err := capture.SavePriorityState(dataDir, priorities.State()); err != nil {
		logger.Warn("could not persist device priorities", "error", err)
	}

	params := session.SessionParams{
		SessionID:     uuid.New().String(),
		Languages:     langs,
		Onboarding:    os.Getenv("LISTEN_ONBOARDING") == "1",
		RecordEnabled: os.Getenv("LISTEN_RECORD") != "0",
		Model:         model,
		BaseURL:       baseURL,
		APIKey:        apiKey,
	}

	state := engine.DetectDeviceState()
	sup := session.NewSupervisor(params, dataDir, engine, state, logger)
	logger.Info("starting session", "adapter", kind, "mode", sup.Mode(), "session_id", params.SessionID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup.Start(ctx)

	go func() {
		<-ctx.Done()
		fmt.Println("\nshutting down...")
		sup.Stop()
	}()

	for ev := range sup.Events() {
		switch ev.Type {
		case session.EventConnecting:
			fmt.Println("connecting...")
		case session.EventConnected:
			fmt.Printf("connected via %s\n", ev.Adapter)
		case session.EventStreamResponse:
			printResponse(ev.Response)
		case session.EventAudioAmplitude:
			fmt.Printf("\r[mic %3d] [spk %3d]", ev.MicLevel, ev.SpeakerLevel)
		case session.EventError:
			fmt.Printf("\nerror: %s\n", ev.Error)
		case session.EventEnded:
			fmt.Println("\nsession ended")
		}
	}
}

func mustLoadPriorities(dataDir string, logger *log.Logger) capture.PriorityState {
	state, err := capture.LoadPriorityState(dataDir)
	if err != nil {
		logger.Warn("could not load device priorities", "error", err)
		return capture.PriorityState{}
	}
	return state
}

func printResponse(resp stt.StreamResponse) {
	switch r := resp.(type) {
	case *stt.Transcript:
		if len(r.Channel.Alternatives) == 0 {
			return
		}
		text := r.Channel.Alternatives[0].Transcript
		if text == "" {
			return
		}
		marker := "…"
		if r.IsFinal {
			marker = "✓"
		}
		channel := "mic"
		if len(r.ChannelIndex) > 0 && r.ChannelIndex[0] == 1 {
			channel = "spk"
		}
		fmt.Printf("\n%s [%s] %.2fs %s\n", marker, channel, r.Start, text)
	case *stt.Terminal:
		fmt.Printf("\nupstream closed: request=%s duration=%.1fs channels=%d\n",
			r.RequestID, r.Duration, r.Channels)
	case *stt.StreamError:
		fmt.Printf("\nprovider error [%s]: %s\n", r.Provider, r.ErrorMessage)
	}
}
