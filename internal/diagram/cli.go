package diagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CLIEngine renders diagrams with the mermaid-cli binary (mmdc).
type CLIEngine struct {
	binary     string
	configPath string
}

// NewCLIEngine locates binary and writes the engine configuration. It fails
// when the binary is not installed.
func NewCLIEngine(binary string, settings Settings) (*CLIEngine, error) {
	if binary == "" {
		binary = "mmdc"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", binary, err)
	}

	cfg, err := json.Marshal(Initialize(settings))
	if err != nil {
		return nil, fmt.Errorf("marshal mermaid config: %w", err)
	}
	f, err := os.CreateTemp("", "mermaid-config-*.json")
	if err != nil {
		return nil, fmt.Errorf("create mermaid config: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(cfg); err != nil {
		return nil, fmt.Errorf("write mermaid config: %w", err)
	}

	return &CLIEngine{binary: path, configPath: f.Name()}, nil
}

// CLILoader returns a LoadFunc that resolves a CLIEngine.
func CLILoader(binary string, settings Settings) LoadFunc {
	return func(ctx context.Context) (Engine, error) {
		return NewCLIEngine(binary, settings)
	}
}

func (e *CLIEngine) Render(ctx context.Context, id, source string) (string, error) {
	dir, err := os.MkdirTemp("", "mermaid-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mmd")
	out := filepath.Join(dir, "output.svg")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("write diagram source: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary,
		"-i", in, "-o", out, "-c", e.configPath, "-I", id, "-b", "transparent", "-q")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &RenderError{Message: cliMessage(stderr.String())}
		}
		return "", fmt.Errorf("mmdc: %w", err)
	}

	svg, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read rendered diagram: %w", err)
	}
	return string(svg), nil
}

// Close removes the configuration file.
func (e *CLIEngine) Close() error {
	return os.Remove(e.configPath)
}

// cliMessage picks the most useful line out of mmdc's stderr.
func cliMessage(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Error:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Error:"))
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncate(line, 200)
		}
	}
	return "Failed to render diagram"
}
