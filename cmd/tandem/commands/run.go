package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/app"
	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/session"
	"github.com/tandemcode/tandem/pkg/types"
)

var (
	runModel   string
	runMode    string
	runSession string
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run one chat turn from the terminal",
	Long: `Run one chat turn and print the assistant's reply.

Examples:
  tandem run "Fix the failing test in parser_test.go"
  tandem run --model anthropic/claude-sonnet-4-20250514 "Explain this code"
  tandem run --session ses_xyz "Continue from where we left off"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model as provider/model")
	runCmd.Flags().StringVar(&runMode, "mode", "", "chat mode (build|plan|...)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "existing session to continue")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "print only the final reply")
}

func runOnce(cmd *cobra.Command, args []string) error {
	root, cfg, cleanup, err := setup(true)
	if err != nil {
		return err
	}
	defer cleanup()

	if runModel != "" {
		cfg.Model = runModel
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{WorkDir: root})
	if err != nil {
		return err
	}
	defer a.Shutdown()

	sessionID := runSession
	if sessionID == "" {
		sess, err := a.Store.Create(ctx, root)
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}

	// Mirror text deltas to the terminal while the turn streams.
	var unsub func()
	if !runQuiet {
		var events <-chan bus.Event
		events, unsub = a.Bus.Subscribe(bus.MessagePartUpdated)
		go func() {
			for e := range events {
				data, ok := e.Data.(bus.MessagePartUpdatedData)
				if !ok || data.SessionID != sessionID {
					continue
				}
				if data.Delta != "" {
					fmt.Fprint(os.Stdout, data.Delta)
				}
			}
		}()
	}

	var providerID, modelID string
	if runModel != "" {
		if p, m, ok := strings.Cut(runModel, "/"); ok {
			providerID, modelID = p, m
		}
	}

	assistant, err := a.Engine.Chat(ctx, &session.ChatRequest{
		SessionID:  sessionID,
		ProviderID: providerID,
		ModelID:    modelID,
		Mode:       runMode,
		Parts:      []types.Part{&types.TextPart{Text: strings.Join(args, " ")}},
	})
	if unsub != nil {
		unsub()
	}
	if err != nil {
		return err
	}

	if runQuiet {
		fmt.Println(assistant.TextContent())
	} else {
		fmt.Println()
	}

	if assistant.Assistant != nil && assistant.Assistant.Error != nil {
		return fmt.Errorf("turn failed: %s", assistant.Assistant.Error.Message)
	}
	return nil
}
