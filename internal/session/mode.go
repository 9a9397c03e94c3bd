package session

// mode is the resolved preset for one turn: optional model override,
// system prompt, tool subset and auto-approval.
type mode struct {
	name        string
	prompt      string
	model       string
	temperature float64
	tools       map[string]bool
	autoApprove bool
}

// resolveMode merges the built-in preset with the config's override
// for the same name. Unknown names behave like "build".
func (e *Engine) resolveMode(name string) mode {
	if name == "" {
		name = "build"
	}
	md := mode{name: name, temperature: chatTemperature}
	if name == "plan" {
		md.prompt = planPrompt
		md.tools = map[string]bool{"write": false, "edit": false, "bash": false}
	}

	if e.config == nil {
		return md
	}
	cfg, ok := e.config.Mode[name]
	if !ok {
		return md
	}

	if cfg.Prompt != "" {
		md.prompt = cfg.Prompt
	}
	if cfg.Model != "" {
		md.model = cfg.Model
	}
	if cfg.Temperature != nil {
		md.temperature = *cfg.Temperature
	}
	if cfg.Tools != nil {
		if md.tools == nil {
			md.tools = make(map[string]bool, len(cfg.Tools))
		}
		for k, v := range cfg.Tools {
			md.tools[k] = v
		}
	}
	if p := cfg.Permission; p != nil &&
		p.Edit == "allow" && p.Bash == "allow" && p.WebFetch == "allow" {
		md.autoApprove = true
	}
	return md
}
