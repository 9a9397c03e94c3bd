package session

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/pkg/types"
)

const titlePrompt = `You are a title generator. Output only a short session title.

Rules:
- A single line, at most 50 characters
- Use -ing verbs for actions (Debugging, Implementing, Refactoring)
- Keep technical terms, numbers and filenames exact
- Drop articles (the, a, an, this, my)`

const titleTimeout = 30 * time.Second

// generateTitle runs the fire-and-forget title side task after the
// first user message. Failures are logged, never retried; the session
// keeps its default title.
func (e *Engine) generateTitle(sessionID, userText string) {
	if strings.TrimSpace(userText) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	mdl, prov, err := e.titleModel()
	if err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("title generation skipped")
		return
	}

	ch, err := prov.Stream(ctx, &provider.Request{
		Model: mdl.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titlePrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userText},
		},
		MaxTokens: 50,
	})
	if err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("title generation failed")
		return
	}

	var b strings.Builder
	for d := range ch {
		switch d.Kind {
		case provider.DeltaText:
			b.WriteString(d.Text)
		case provider.DeltaError:
			logging.Warn().Err(d.Err).Str("session", sessionID).Msg("title generation failed")
			return
		}
	}

	title := cleanTitle(b.String())
	if title == "" {
		return
	}
	if _, err := e.store.Update(ctx, sessionID, func(sess *types.Session) {
		sess.Title = title
	}); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("title update failed")
	}
}

// titleModel prefers the configured small model for the side call.
func (e *Engine) titleModel() (*types.Model, provider.Provider, error) {
	var (
		mdl *types.Model
		err error
	)
	if e.config != nil && e.config.SmallModel != "" {
		providerID, modelID := provider.ParseModelString(e.config.SmallModel)
		mdl, err = e.providers.GetModel(providerID, modelID)
	} else {
		mdl, err = e.providers.DefaultModel()
	}
	if err != nil {
		return nil, nil, err
	}
	prov, err := e.providers.Get(mdl.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return mdl, prov, nil
}

// cleanTitle trims the model output down to one bounded line.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	for _, line := range strings.Split(title, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			title = line
			break
		}
	}
	title = strings.Trim(title, `"`)
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:77]) + "..."
	}
	return title
}
