package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ronpa-server/internal/service"
	"ronpa-server/shared/models"

	"github.com/spf13/cobra"
)

const playHelp = `Commands:
  /continue        let the host advance the story
  /auto on|off     toggle auto-play
  /mute, /unmute   toggle speech
  /cast            show the roster
  /save <id>       save a character profile to the archive
  /quit            leave (the game stays in its save slot)
Anything else is sent to the host as your action.`

func newPlayCmd() *cobra.Command {
	var (
		resume         bool
		slotID         string
		req            service.SetupRequest
		charactersFile string
		mode           string
		auto           bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start a new killing game or resume a saved one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			sink := newTerminalSink(out)
			sessions := s.engine.NewSessionManager(s.ctx, sink)
			defer sessions.CloseAll()

			var loop *service.GameLoop
			switch {
			case slotID != "":
				loop, err = sessions.Get(cmd.Context(), slotID)
			case resume:
				loop, err = sessions.Resume(cmd.Context())
			default:
				if charactersFile != "" {
					data, readErr := os.ReadFile(charactersFile)
					if readErr != nil {
						return fmt.Errorf("read characters file: %w", readErr)
					}
					req.Characters = string(data)
				}
				req.Mode = models.GameMode(strings.ToUpper(mode))
				loop, err = sessions.Create(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			st := loop.State()
			fmt.Fprintf(out, "=== %s === (%s, hosted by %s)\n%s\n\n", st.Title, st.Theme, st.HostName, playHelp)
			if len(st.Messages) > 0 {
				if last, ok := st.LastMessage(); ok {
					fmt.Fprintf(out, "%s\n\n", last.Content)
				}
			}
			if auto {
				loop.SetAutoPlay(true)
			}
			return playLoop(cmd, loop, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "resume the last autosaved session")
	cmd.Flags().StringVar(&slotID, "slot", "", "resume a specific save slot by game id")
	cmd.Flags().StringVar(&req.Title, "title", "", "game title (random by default)")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "setting of the game")
	cmd.Flags().StringVar(&req.HostName, "host", "", "name of the host")
	cmd.Flags().StringVar(&charactersFile, "characters-file", "", `file with "name: description" lines`)
	cmd.Flags().StringSliceVar(&req.ArchivePicks, "pick", nil, "archived character ids to bring back")
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeWatch), "WATCH or PARTICIPATE")
	cmd.Flags().BoolVar(&auto, "auto", false, "start with auto-play enabled")
	return cmd
}

func playLoop(cmd *cobra.Command, loop *service.GameLoop, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch fields := strings.Fields(line); fields[0] {
		case "/quit", "/exit":
			return nil
		case "/continue":
			err = loop.Continue(ctx)
		case "/auto":
			on := len(fields) < 2 || fields[1] != "off"
			loop.SetAutoPlay(on)
			fmt.Fprintf(out, "auto-play: %v\n", loop.AutoPlayEnabled())
		case "/mute":
			loop.SetMuted(true)
		case "/unmute":
			loop.SetMuted(false)
		case "/cast":
			printCast(out, loop.State().Characters)
		case "/save":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /save <character id>")
				continue
			}
			if err = loop.SaveCharacterProfile(ctx, fields[1]); err == nil {
				fmt.Fprintln(out, "saved to archive")
			}
		case "/help":
			fmt.Fprintln(out, playHelp)
		default:
			err = loop.Submit(ctx, line)
		}

		switch {
		case err == nil:
		case errors.Is(err, models.ErrTurnInProgress):
			fmt.Fprintln(out, "(the host is still speaking)")
		case errors.Is(err, models.ErrTransportFailure):
			fmt.Fprintln(out, "(the host did not answer, try again)")
		default:
			fmt.Fprintln(out, "error:", err)
		}
	}
}
