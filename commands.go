package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/queue"
	"github.com/dgnsrekt/cuecast/internal/tone"
	"github.com/dgnsrekt/cuecast/ui"
)

var (
	sayPrefetch    bool
	drillMouse     bool
	drillNoAuto    bool
	drillBGM       string
	tonePadding    = 50 * time.Millisecond
	errNotTerminal = errors.New("drill needs an interactive terminal")

	sayCmd = &cobra.Command{
		Use:   "say TOKEN...",
		Short: "Pronounce one or more characters in order",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSay,
	}

	prefetchCmd = &cobra.Command{
		Use:   "prefetch TOKEN...",
		Short: "Warm the clip cache and report what loaded",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPrefetch,
	}

	praiseCmd = &cobra.Command{
		Use:       "praise [CATEGORY]",
		Short:     "Play a praise cue (basic, combo, perfect)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(cue.PraiseBasic), string(cue.PraiseCombo), string(cue.PraisePerfect)},
		RunE:      runPraise,
	}

	encourageCmd = &cobra.Command{
		Use:   "encourage",
		Short: "Play an encouragement cue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return playOne(cmd.Context(), func(s *session) *queue.Handle {
				return s.orch.PlayEncouragement()
			})
		},
	}

	toneCmd = &cobra.Command{
		Use:       "tone KIND",
		Short:     "Play a feedback tone (correct, wrong, button)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(cue.ToneCorrect), string(cue.ToneWrong), string(cue.ToneButton)},
		RunE:      runTone,
	}

	profileCmd = &cobra.Command{
		Use:   "profile [USER-AGENT]",
		Short: "Show how a host would be classified",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProfile,
	}

	drillCmd = &cobra.Command{
		Use:   "drill TOKEN...",
		Short: "Practise characters interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDrill,
	}
)

func init() {
	sayCmd.Flags().BoolVar(&sayPrefetch, "prefetch", true, "warm every token before playing")
	drillCmd.Flags().BoolVarP(&drillMouse, "mouse", "m", false, "enable mouse support")
	drillCmd.Flags().BoolVar(&drillNoAuto, "no-autoplay", false, "do not pronounce tokens when shown")
	drillCmd.Flags().StringVar(&drillBGM, "background", "", "loop this clip reference under the drill")
}

// signalContext is canceled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

// wait blocks until h settles. An interrupt stops everything queued.
func wait(ctx context.Context, s *session, h *queue.Handle) (queue.State, error) {
	state, err := h.Wait(ctx)
	if ctx.Err() != nil {
		if n := s.orch.StopAll(); n > 0 {
			log.Debug("Stopped playback", "canceled", n)
		}
		<-h.Done()
		return h.State(), ctx.Err()
	}
	return state, err
}

func printOutcome(name string, h *queue.Handle) {
	switch h.State() {
	case queue.StateCompleted:
		fmt.Printf("%s %s\n", keyword("✓"), name)
	case queue.StateFailed:
		reason := "failed"
		if err := h.Err(); err != nil {
			reason = err.Error()
		}
		fmt.Printf("%s %s %s\n", warning("✗"), name, faint(reason))
	default:
		fmt.Printf("%s %s %s\n", faint("-"), name, faint(h.State().String()))
	}
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	s.orch.UnlockAudio()
	if sayPrefetch {
		s.orch.PrefetchCharacters(args)
	}

	handles := make([]*queue.Handle, len(args))
	for i, token := range args {
		handles[i] = s.orch.PlayCharacterSound(token)
	}

	failed := 0
	for i, h := range handles {
		if _, err := wait(ctx, s, h); err != nil && ctx.Err() != nil {
			return nil
		}
		printOutcome(args[i], h)
		if h.State() == queue.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tokens could not be played", failed, len(args))
	}
	return nil
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	s.orch.PrefetchCharacters(args)
	s.orch.WaitPrefetch()

	st := s.orch.Stats().Prefetch
	fmt.Printf("%s %d ready, %d failed, %s decoded in %s\n",
		keyword("prefetch"),
		st.Ready,
		st.Failures,
		humanize.Bytes(uint64(max(st.Bytes, 0))), //nolint:gosec
		time.Since(start).Round(time.Millisecond),
	)
	if st.Failures > 0 {
		return fmt.Errorf("%s could not be loaded", humanize.Comma(st.Failures))
	}
	return nil
}

func runPraise(cmd *cobra.Command, args []string) error {
	cat := cue.PraiseBasic
	if len(args) == 1 {
		var err error
		if cat, err = cue.ParsePraiseCategory(args[0]); err != nil {
			return err
		}
	}
	return playOne(cmd.Context(), func(s *session) *queue.Handle {
		return s.orch.PlayPraise(cat)
	})
}

// playOne runs a single queued request. Praise and encouragement never
// surface an error to the caller, so a failed handle is only reported.
func playOne(parent context.Context, play func(*session) *queue.Handle) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	s.orch.UnlockAudio()
	h := play(s)
	if _, err := wait(ctx, s, h); err != nil && ctx.Err() != nil {
		return nil
	}
	printOutcome(h.Name(), h)
	return nil
}

func runTone(cmd *cobra.Command, args []string) error {
	kind, err := cue.ParseToneKind(args[0])
	if err != nil {
		return err
	}
	shape, _ := tone.ShapeFor(kind)

	s, err := newSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	s.orch.PlaySound(kind)
	time.Sleep(shape.Duration + tonePadding)
	return nil
}

func runProfile(_ *cobra.Command, args []string) error {
	ua := cfg.Host.UserAgent
	if len(args) == 1 {
		ua = args[0]
	}
	profiler, err := cfg.Profiler()
	if err != nil {
		return err
	}
	p := profiler.Classify(profile.Signals{
		UserAgent: ua,
		SpeechAPI: len(speechBackends(cfg.Speech)) > 0,
	})

	speech := keyword("supported")
	if !p.SpeechSupported {
		speech = warning("unsupported")
	}
	fmt.Printf("%s  %s\n", faint("host  "), p.BrowserLabel)
	fmt.Printf("%s  %s\n", faint("speech"), speech)
	if p.Reason != "" {
		fmt.Printf("%s  %s\n", faint("reason"), p.Reason)
	}
	if p.SlowWarmup {
		fmt.Printf("%s  %s\n", faint("warmup"), profile.DefaultDelay(p))
	}
	return nil
}

func runDrill(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return errNotTerminal
	}

	drill, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing drill config: %w", err)
	}
	drill.Tokens = args
	drill.EnableMouse = drillMouse
	if drillNoAuto {
		drill.AutoPlay = false
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if drillBGM != "" {
		if err := s.orch.PlayBackground(ctx, strings.TrimPrefix(drillBGM, "/")); err != nil {
			log.Warn("Background track unavailable", "ref", drillBGM, "err", err)
		}
	}

	if _, err := ui.NewProgram(drill, s.orch).Run(); err != nil {
		return fmt.Errorf("unable to run drill: %w", err)
	}
	return nil
}
