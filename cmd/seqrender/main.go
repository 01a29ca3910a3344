package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/term"

	"github.com/cbegin/pcmseq-go"
	seqlog "github.com/cbegin/pcmseq-go/internal/log"
	"github.com/cbegin/pcmseq-go/internal/pcm"
)

// defaultScript is a short arpeggio over a held bass note and an FM bell.
const defaultScript = `
instrument(0, "square", { attack = 0.005, decay = 0.05, sustain = 0.6, release = 0.08 })
instrument(1, "sine", { attack = 0.02, sustain = 0.9, release = 0.3 })
instrument(2, "fm", { mod_mul = 3.5, mod_index = 2.2, decay = 0.6, sustain = 0.2, release = 0.4 })
note(midi(45), 2.0, 0.8, 0.5, 1)
note(midi(81), 0.5, 0.6, 0, 2)
for _, n in ipairs({57, 60, 64, 69, 64, 60, 57, 60}) do
	note(midi(n), 0.2, 0.7)
	rest(0.25)
end
loop(0, 2.0)
`

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func main() {
	var (
		scriptPath   = flag.String("file", "", "path to a Lua song script (default: built-in demo)")
		outPath      = flag.String("out", "out.wav", "WAV output path; '-' for stdout, '' to skip")
		sampleRate   = flag.Int("sample-rate", 48000, "output sample rate")
		channels     = flag.Int("channels", 2, "output channel count")
		formatName   = flag.String("format", "float32", "render sample format: float32|float64")
		bits         = flag.Int("bits", 0, "WAV sample width: 16|32|64 (0 = match -format)")
		workers      = flag.Int("workers", 1, "render goroutines")
		noEnvelopes  = flag.Bool("no-envelopes", false, "ignore instrument envelopes")
		play         = flag.Bool("play", false, "play the result after rendering")
		backendName  = flag.String("backend", "ebiten", "playback backend: ebiten|oto")
		loop         = flag.Bool("loop", false, "with -play, repeat the script's first loop region until interrupted")
		logLevelName = flag.String("log-level", "info", "log level: debug|info|warn|error|none")
		verbose      = flag.Bool("v", false, "log at debug level, overriding -log-level")
	)
	flag.Parse()

	logger := seqlog.New(os.Stderr, seqlog.LevelFromString(*logLevelName))
	if *verbose {
		logger.SetLevel(seqlog.LevelDebug)
	}

	name, src, err := resolveScript(*scriptPath)
	if err != nil {
		log.Fatal(err)
	}
	format, err := pcm.ParseFormat(*formatName)
	if err != nil {
		log.Fatal(err)
	}
	wavFormat, err := wavFormatFor(*bits, format)
	if err != nil {
		log.Fatal(err)
	}
	backend, err := pcmseq.ParseBackend(*backendName)
	if err != nil {
		log.Fatal(err)
	}

	opts := []pcmseq.Option{
		pcmseq.WithParams(pcmseq.Params{SampleRate: *sampleRate, Channels: *channels, Format: format}),
		pcmseq.WithWorkers(*workers),
		pcmseq.WithLogger(logger),
	}
	if *noEnvelopes {
		opts = append(opts, pcmseq.WithoutEnvelopes())
	}

	start := time.Now()
	buf, project, err := pcmseq.RenderScript(name, src, opts...)
	if err != nil {
		log.Fatal(err)
	}
	if logger.Level() <= seqlog.LevelInfo {
		audioLen := time.Duration(buf.Seconds() * float64(time.Second))
		logger.Infof("[SEQ] rendered %s: %d notes, %d frames (%s) in %s",
			name, len(project.Sequence.Notes), buf.Frames(),
			durafmt.Parse(audioLen).LimitFirstN(2).Format(shortUnits),
			durafmt.Parse(time.Since(start)).LimitFirstN(2).Format(shortUnits))
	}

	if *outPath != "" {
		n, err := writeWAV(*outPath, buf, wavFormat)
		if err != nil {
			log.Fatal(err)
		}
		logger.Infof("[SEQ] wrote %s (%s, %s)", *outPath, humanize.Bytes(uint64(n)), wavFormat)
	}

	if !*play {
		return
	}
	var previewOpts []pcmseq.PreviewOption
	previewOpts = append(previewOpts, pcmseq.WithBackend(backend))
	if *loop {
		if len(project.Sequence.Loops) == 0 {
			logger.Warnf("[SEQ] -loop set but %s declares no loop region", name)
		} else {
			previewOpts = append(previewOpts, pcmseq.WithPreviewLoop(project.Sequence.Loops[0]))
		}
	}
	preview, err := pcmseq.NewPreview(buf, previewOpts...)
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	preview.Play()
	if preview.Looping() {
		fmt.Fprintln(os.Stderr, "looping; press Ctrl-C to stop")
	}
	if err := preview.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	if err := preview.Stop(); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintln(os.Stderr, "playback completed")
}

func resolveScript(path string) (string, string, error) {
	if strings.TrimSpace(path) == "" {
		return "demo.lua", defaultScript, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return path, string(data), nil
}

func wavFormatFor(bits int, render pcm.SampleFormat) (pcm.SampleFormat, error) {
	switch bits {
	case 0:
		return render, nil
	case 16:
		return pcm.FormatInt16, nil
	case 32:
		return pcm.FormatFloat32, nil
	case 64:
		return pcm.FormatFloat64, nil
	default:
		return 0, fmt.Errorf("invalid -bits %d (expected 16|32|64)", bits)
	}
}

// writeWAV encodes buf to path and returns the number of bytes written.
// Binary output to an interactive terminal is refused.
func writeWAV(path string, buf *pcmseq.Buffer, as pcm.SampleFormat) (int, error) {
	if path == "-" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return 0, errors.New("refusing to write WAV data to a terminal; redirect stdout or use -out FILE")
		}
		w := bufio.NewWriter(os.Stdout)
		if err := pcmseq.EncodeWAV(w, buf, as); err != nil {
			return 0, err
		}
		return pcm.WAVSize(buf, as), w.Flush()
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := pcmseq.EncodeWAV(f, buf, as); err != nil {
		f.Close()
		return 0, err
	}
	return pcm.WAVSize(buf, as), f.Close()
}
