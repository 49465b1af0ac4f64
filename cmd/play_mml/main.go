package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/cbegin/siopm-go"
)

const defaultMML = "t120 o5 l8 e g b d f a"

func main() {
	var (
		sampleRate = flag.Int("sample-rate", siopm.SampleRate, "output sample rate (44100 or 22050)")
		backend    = flag.String("backend", "ebiten", "audio backend: ebiten|oto")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 3, "when -loop, stop after N loops (0 = loop forever)")
		mmlPath    = flag.String("file", "", "path to an MML file")
		mmlInline  = flag.String("mml", "", "inline MML string")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		outPath    = flag.String("out", "", "render to this WAV file instead of playing")
	)
	flag.Parse()

	mmlText, err := resolveMMLInput(*mmlPath, *mmlInline)
	if err != nil {
		log.Fatal(err)
	}

	if *outPath != "" {
		if err := renderWAV(mmlText, *sampleRate, *outPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	b, err := parseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}
	pl, err := siopm.NewPlayer(*sampleRate, siopm.WithBackend(b), siopm.WithLoopPlayback(*loop))
	if err != nil {
		log.Fatal(err)
	}
	pl.SetMasterVolume(*volume)
	ch := pl.Watch()
	if err := pl.PlayMML(mmlText); err != nil {
		log.Fatal(err)
	}
	out := newProgress(os.Stdout)
	loopCount := 0
	for event := range ch {
		switch event.Kind {
		case siopm.EventPlaybackEnded:
			out.println("playback completed")
			goto done
		case siopm.EventLoopCompleted:
			loopCount++
			out.println(fmt.Sprintf("loop %d completed", loopCount))
			if *loop && *loops > 0 && loopCount >= *loops {
				pl.Stop()
			}
		case siopm.EventTrigger:
			out.println(fmt.Sprintf("trigger %d (track=%d note=%d)", event.TriggerID, event.Track, event.Note))
		case siopm.EventBeat:
			out.status(fmt.Sprintf("beat %d  %.2f bpm", event.Value, pl.BPM()))
		case siopm.EventTempo:
			out.status(fmt.Sprintf("tempo %.2f bpm", float64(event.Value)/100))
		}
	}
done:
	pl.Wait()
}

func renderWAV(mmlText string, sampleRate int, path string) error {
	samples, err := siopm.RenderMML(mmlText, sampleRate)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := siopm.WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.2fs)\n", path, float64(len(samples)/2)/float64(sampleRate))
	return nil
}

// progress rewrites a single status line when out is a terminal. Status
// lines are dropped otherwise.
type progress struct {
	out   *os.File
	tty   bool
	dirty bool
}

func newProgress(out *os.File) *progress {
	return &progress{out: out, tty: term.IsTerminal(int(out.Fd()))}
}

func (p *progress) status(s string) {
	if !p.tty {
		return
	}
	fmt.Fprintf(p.out, "\r\033[K%s", s)
	p.dirty = true
}

func (p *progress) println(s string) {
	if p.dirty {
		fmt.Fprint(p.out, "\r\033[K")
		p.dirty = false
	}
	fmt.Fprintln(p.out, s)
}

func resolveMMLInput(path string, inline string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultMML, nil
}

func parseBackend(name string) (siopm.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ebiten":
		return siopm.BackendEbiten, nil
	case "oto":
		return siopm.BackendOto, nil
	default:
		return "", fmt.Errorf("invalid -backend %q (expected ebiten|oto)", name)
	}
}
