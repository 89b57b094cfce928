package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

var (
	eventScript string
	eventButton uint32
	eventX      float64
	eventY      float64
	eventPaths  []string
)

var eventCmd = &cobra.Command{
	Use:   "event <icon-path> <click|hover-enter|hover-exit|drop|select|deselect>",
	Short: "Deliver one input event to an icon and print the result as JSON",
	Long: `Render a single icon, deliver one input event to its widget script, perform
any action the script asks for and print the event result together with the
redrawn frame.

Examples:
  deskglyph event ~/Desktop/notes.txt click --x 12 --y 30
  deskglyph event ~/Desktop/Projects drop --path ~/todo.txt --path ~/plan.md
  deskglyph event ~/Desktop/notes.txt select --script ./selectable.js`,
	Args: cobra.ExactArgs(2),
	RunE: runEvent,
}

func init() {
	eventCmd.Flags().StringVarP(&eventScript, "script", "s", "", "script to use instead of resolving one")
	eventCmd.Flags().Uint32Var(&eventButton, "button", 1, "mouse button for click")
	eventCmd.Flags().Float64Var(&eventX, "x", 0, "click x in icon coordinates")
	eventCmd.Flags().Float64Var(&eventY, "y", 0, "click y in icon coordinates")
	eventCmd.Flags().StringArrayVar(&eventPaths, "path", nil, "dropped path (repeatable)")
}

// parseEvent maps a command line event name to a protocol event.
func parseEvent(name string, button uint32, x, y float64, paths []string) (protocol.Event, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "_") {
	case "click":
		return protocol.Click(button, x, y), nil
	case "hover_enter", "enter":
		return protocol.HoverEnter(), nil
	case "hover_exit", "exit", "leave":
		return protocol.HoverExit(), nil
	case "drop":
		if len(paths) == 0 {
			return protocol.Event{}, fmt.Errorf("drop needs at least one --path")
		}
		return protocol.Drop(paths...), nil
	case "select", "selected":
		return protocol.Selected(), nil
	case "deselect", "deselected":
		return protocol.Deselected(), nil
	default:
		return protocol.Event{}, fmt.Errorf("unknown event %q", name)
	}
}

// iconSource is a desktop holding a single icon.
type iconSource struct {
	icon desktop.Icon
}

func (s iconSource) Scan(context.Context) ([]desktop.Icon, error) {
	return []desktop.Icon{s.icon}, nil
}

// frameRecorder keeps the last frame drawn.
type frameRecorder struct {
	mu    sync.Mutex
	frame *daemon.Frame
}

func (r *frameRecorder) Draw(_ context.Context, frame daemon.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = &frame
	return nil
}

func (r *frameRecorder) Remove(string) {}

func (r *frameRecorder) last() *daemon.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// eventOutput is what the event command prints.
type eventOutput struct {
	Result protocol.EventResult `json:"result"`
	Frame  *daemon.Frame        `json:"frame,omitempty"`
}

func runEvent(cmd *cobra.Command, args []string) error {
	var dropped []string
	for _, p := range eventPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		dropped = append(dropped, abs)
	}
	ev, err := parseEvent(args[1], eventButton, eventX, eventY, dropped)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.ForDaemon(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	icon, err := desktop.Inspect(path)
	if err != nil {
		return err
	}

	var script string
	var extraDirs []string
	if eventScript != "" {
		if script, err = filepath.Abs(eventScript); err != nil {
			return err
		}
		extraDirs = append(extraDirs, filepath.Dir(script))
	}

	ctx := cmd.Context()
	st, err := buildStack(ctx, cfg, logger.Logger, extraDirs...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = st.manager.Shutdown(shutdownCtx)
	}()

	var resolver daemon.Resolver = st.catalog
	if script != "" {
		resolver = fixedScript(script)
	}

	frames := &frameRecorder{}
	d := st.newDaemon(iconSource{icon: icon}, resolver, daemon.WithRenderer(frames))

	report, err := d.Refresh(ctx)
	if err != nil {
		return err
	}
	if report.Rendered == 0 {
		return fmt.Errorf("icon %s did not render (skipped %d, failed %d)", icon.Path, report.Skipped, report.Failed)
	}

	res, err := d.Dispatch(ctx, icon.Path, ev)
	if err != nil {
		return err
	}

	out, err := sonic.MarshalIndent(eventOutput{Result: res, Frame: frames.last()}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
