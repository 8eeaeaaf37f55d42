package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// serverName is the key propspec is registered under in agent configs.
const serverName = "propspec"

// agentDef describes how to detect one AI agent and register the MCP
// server with it. CLI agents are configured through `<binary> mcp add`,
// file agents by editing a JSON config.
type agentDef struct {
	ID     string
	Name   string
	Binary string

	// Markers are directories whose presence means the project uses the
	// agent. Agents without markers are detected by the parent directory of
	// their config file.
	Markers    []string
	ConfigPath func() string
	ServersKey string
	Extra      map[string]any
	NeedsScope bool
}

func (a agentDef) isCLI() bool { return a.Binary != "" }

// detectedAgent is an agent found on the system.
type detectedAgent struct {
	agentDef
	configPath string
	configured bool
}

// Replaceable for testing.
var (
	lookPath   = exec.LookPath
	statPath   = os.Stat
	runCommand = func(stdout, stderr io.Writer, name string, args ...string) error {
		cmd := exec.Command(name, args...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		return cmd.Run()
	}
)

// agentRegistry lists the supported agents in display order.
var agentRegistry = []agentDef{
	{ID: "claude_code", Name: "Claude Code", Binary: "claude", NeedsScope: true},
	{ID: "openai_codex", Name: "OpenAI Codex", Binary: "codex", NeedsScope: true},
	{
		ID: "vscode", Name: "VS Code", Markers: []string{".vscode"},
		ConfigPath: func() string { return filepath.Join(".vscode", "mcp.json") },
		ServersKey: "servers",
		Extra:      map[string]any{"type": "stdio"},
	},
	{
		ID: "cursor", Name: "Cursor", Markers: []string{".cursor"},
		ConfigPath: func() string { return filepath.Join(".cursor", "mcp.json") },
		ServersKey: "mcpServers",
	},
	{
		ID: "claude_desktop", Name: "Claude Desktop",
		ConfigPath: claudeDesktopConfigPath,
		ServersKey: "mcpServers",
	},
}

func claudeDesktopConfigPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Claude", "claude_desktop_config.json")
	default:
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")
	}
}

func detectAgents(registry []agentDef) []detectedAgent {
	var detected []detectedAgent
	for _, def := range registry {
		if def.isCLI() {
			if _, err := lookPath(def.Binary); err == nil {
				detected = append(detected, detectedAgent{
					agentDef:   def,
					configured: hasServerEntry(".mcp.json", "mcpServers"),
				})
			}
			continue
		}

		found := false
		for _, marker := range def.Markers {
			if _, err := statPath(marker); err == nil {
				found = true
				break
			}
		}
		configPath := def.ConfigPath()
		if !found && len(def.Markers) == 0 {
			_, err := statPath(filepath.Dir(configPath))
			found = err == nil
		}
		if found {
			detected = append(detected, detectedAgent{
				agentDef:   def,
				configPath: configPath,
				configured: hasServerEntry(configPath, def.ServersKey),
			})
		}
	}
	return detected
}

// hasServerEntry reports whether the JSON config at path registers propspec.
func hasServerEntry(path, serversKey string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return false
	}
	servers, _ := config[serversKey].(map[string]any)
	_, ok := servers[serverName]
	return ok
}

// serverEntry returns the MCP server config object for propspec serve.
func serverEntry(serveArgs []string, extra map[string]any) map[string]any {
	args := make([]any, 0, len(serveArgs)+1)
	args = append(args, "serve")
	for _, a := range serveArgs {
		args = append(args, a)
	}
	entry := map[string]any{
		"command": serverName,
		"args":    args,
	}
	for k, v := range extra {
		entry[k] = v
	}
	return entry
}

// mergeServerEntry adds entry under serversKey in the existing JSON config
// and returns the new document. It returns nil, nil when propspec is
// already registered.
func mergeServerEntry(existing []byte, serversKey string, entry map[string]any) ([]byte, error) {
	config := make(map[string]any)
	if len(strings.TrimSpace(string(existing))) > 0 {
		if err := json.Unmarshal(existing, &config); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	servers, ok := config[serversKey].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	if _, exists := servers[serverName]; exists {
		return nil, nil
	}
	servers[serverName] = entry
	config[serversKey] = servers

	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func configureFileAgent(d detectedAgent, serveArgs []string) error {
	if err := os.MkdirAll(filepath.Dir(d.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	existing, err := os.ReadFile(d.configPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	merged, err := mergeServerEntry(existing, d.ServersKey, serverEntry(serveArgs, d.Extra))
	if err != nil || merged == nil {
		return err
	}
	return os.WriteFile(d.configPath, merged, 0o644)
}

func configureCLIAgent(d detectedAgent, serveArgs []string, scope string, stdout, stderr io.Writer) error {
	args := []string{"mcp", "add"}
	if scope != "" {
		args = append(args, "--scope", scope)
	}
	args = append(args, serverName, "--", serverName, "serve")
	args = append(args, serveArgs...)
	return runCommand(stdout, stderr, d.Binary, args...)
}

// prompter reads answers from one buffered reader so that consecutive
// prompts see consecutive lines.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(r), w: w}
}

func (p *prompter) readLine() (string, bool) {
	line, err := p.r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// yesNo asks question and returns true for yes, the default.
func (p *prompter) yesNo(question string) bool {
	fmt.Fprintf(p.w, "%s ", question)
	answer, ok := p.readLine()
	if !ok {
		return true
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes"
}

// scope returns "project", "user", or "" to skip.
func (p *prompter) scope(agentName string) string {
	fmt.Fprintf(p.w, "\n%s: add the propspec MCP server?\n", agentName)
	fmt.Fprintln(p.w, "  [1] Project scope (shared with team)")
	fmt.Fprintln(p.w, "  [2] User scope (personal, global)")
	fmt.Fprintln(p.w, "  [3] Skip")
	fmt.Fprint(p.w, "  > ")

	answer, ok := p.readLine()
	if !ok {
		return "project"
	}
	switch answer {
	case "1", "":
		return "project"
	case "2":
		return "user"
	default:
		return ""
	}
}

func runSetup(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("setup", "[flags]", stderr)
	auto := fs.Bool("auto", false, "configure every detected agent without prompting")
	catalogPath := fs.String("catalog", "", "catalog file passed to 'propspec serve'")
	configPath := fs.String("config", "", "config file passed to 'propspec serve'")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	var serveArgs []string
	for _, f := range []struct{ flag, path string }{{"-catalog", *catalogPath}, {"-config", *configPath}} {
		if f.path == "" {
			continue
		}
		abs, err := filepath.Abs(f.path)
		if err != nil {
			return err
		}
		serveArgs = append(serveArgs, f.flag, abs)
	}

	executeSetup(newPrompter(stdin, stdout), stdout, stderr, detectAgents(agentRegistry), serveArgs, *auto)
	return nil
}

// executeSetup configures the detected agents, asking first unless auto.
func executeSetup(p *prompter, stdout, stderr io.Writer, detected []detectedAgent, serveArgs []string, auto bool) {
	if len(detected) == 0 {
		fmt.Fprintln(stdout, "No supported AI agents detected.")
		return
	}

	fmt.Fprintln(stdout, "Detected AI agents:")
	for _, d := range detected {
		if d.configured {
			fmt.Fprintf(stdout, "  * %s (already configured)\n", d.Name)
		} else {
			fmt.Fprintf(stdout, "  * %s\n", d.Name)
		}
	}
	fmt.Fprintln(stdout)

	if !auto && !p.yesNo("Configure agents? [Y/n]") {
		return
	}

	for _, d := range detected {
		if d.configured {
			fmt.Fprintf(stdout, "%s: already configured, skipping\n", d.Name)
			continue
		}

		if d.isCLI() {
			scope := "project"
			if !auto && d.NeedsScope {
				if scope = p.scope(d.Name); scope == "" {
					fmt.Fprintln(stdout, "  skipped")
					continue
				}
			}
			if err := configureCLIAgent(d, serveArgs, scope, stdout, stderr); err != nil {
				red.Fprintf(stdout, "  ! %s: %v\n", d.Name, err)
				continue
			}
			green.Fprintf(stdout, "  + %s configured (scope: %s)\n", d.Name, scope)
			continue
		}

		if !auto && !p.yesNo(fmt.Sprintf("%s: add to %s? [Y/n]", d.Name, d.configPath)) {
			fmt.Fprintln(stdout, "  skipped")
			continue
		}
		if err := configureFileAgent(d, serveArgs); err != nil {
			red.Fprintf(stdout, "  ! %s: %v\n", d.Name, err)
			continue
		}
		green.Fprintf(stdout, "  + %s configured (%s)\n", d.Name, d.configPath)
	}
}
