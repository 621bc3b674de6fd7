package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/tripdesk/internal/booking"
	"github.com/soyeahso/tripdesk/internal/dialog"
	"github.com/soyeahso/tripdesk/internal/domain"
)

// chatStyles colours the REPL.
type chatStyles struct {
	Prompt lipgloss.Style
	Agent  lipgloss.Style
	Reply  lipgloss.Style
	Dim    lipgloss.Style
	Error  lipgloss.Style
}

func newChatStyles() chatStyles {
	return chatStyles{
		Prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
		Agent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61afef")),
		Reply:  lipgloss.NewStyle(),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#e06c75")),
	}
}

func newChatCmd() *cobra.Command {
	var (
		user   string
		thread string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant in the terminal",
		Long: "Without arguments chat starts an interactive session on one thread. " +
			"With a message it runs a single turn and prints the reply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, paths, log, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.router == nil {
				return fmt.Errorf("no usable model provider for %q", cfg.LLM.Provider)
			}

			if thread == "" {
				thread = uuid.NewString()
			}
			r := &repl{
				router: a.router,
				caller: user,
				thread: thread,
				stream: stream,
				out:    cmd.OutOrStdout(),
				styles: newChatStyles(),
			}
			if len(args) > 0 {
				return r.turn(ctx, strings.Join(args, " "))
			}
			return r.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&user, "user", booking.DemoUserID, "user id the conversation runs as")
	cmd.Flags().StringVar(&thread, "thread", "", "resume this thread id (default: new thread)")
	cmd.Flags().BoolVar(&stream, "stream", true, "stream replies as they arrive")

	return cmd
}

// repl runs turns for one caller on one thread.
type repl struct {
	router *dialog.Router
	caller string
	thread string
	stream bool
	out    io.Writer
	styles chatStyles
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, r.styles.Dim.Render(fmt.Sprintf("thread %s as %s. /agent shows the active agent, /quit exits.", r.thread, r.caller)))
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, r.styles.Prompt.Render("you> "))
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/agent":
			r.showSession(ctx)
			continue
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(r.out, r.styles.Error.Render(err.Error()))
		}
	}
}

func (r *repl) turn(ctx context.Context, text string) error {
	var streamed bool
	var onEvent dialog.StreamFunc
	if r.stream {
		onEvent = func(ev dialog.Event) {
			switch ev.Type {
			case "agent":
				if streamed {
					fmt.Fprintln(r.out)
					streamed = false
				}
				fmt.Fprintln(r.out, r.styles.Dim.Render("-> "+ev.Agent))
			case "delta":
				if !streamed {
					fmt.Fprint(r.out, r.styles.Agent.Render(ev.Agent+"> "))
					streamed = true
				}
				fmt.Fprint(r.out, r.styles.Reply.Render(ev.Content))
			}
		}
	}

	res, err := r.router.Turn(ctx, domain.Turn{
		ThreadID:  r.thread,
		CallerID:  r.caller,
		Text:      text,
		Timestamp: time.Now(),
	}, onEvent)
	if streamed {
		fmt.Fprintln(r.out)
	}
	if res != nil && (!streamed || res.Failed || res.Fallback) {
		fmt.Fprintln(r.out, r.styles.Agent.Render(res.Agent+"> ")+r.styles.Reply.Render(res.Reply))
	}
	if errors.Is(err, dialog.ErrCallerMismatch) {
		return fmt.Errorf("thread %s belongs to another user", r.thread)
	}
	return err
}

func (r *repl) showSession(ctx context.Context) {
	info, err := r.router.Session(ctx, r.thread)
	switch {
	case err != nil:
		fmt.Fprintln(r.out, r.styles.Error.Render(err.Error()))
	case info == nil:
		fmt.Fprintln(r.out, r.styles.Dim.Render("primary (no messages yet)"))
	default:
		fmt.Fprintln(r.out, r.styles.Dim.Render(fmt.Sprintf("%s, depth %d, %d messages", info.Agent, info.Depth, info.Messages)))
	}
}
