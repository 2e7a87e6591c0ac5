package compile

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// ErrCompiler marks failures of the external model compiler: non-zero exit
// or output the parser cannot make sense of. The tool's own output is carried
// verbatim in the wrapping message.
var ErrCompiler = errors.New("model compiler failed")

// RunMethod selects how the external tools are executed.
type RunMethod int

const (
	// Native runs conjure and savilerow from PATH.
	Native RunMethod = iota
	// Docker runs them inside the conjure container image.
	Docker
	// Podman is Docker with podman as the container runtime.
	Podman
)

const containerImage = "ghcr.io/conjure-cp/conjure:main"

var _ pflag.Value = (*RunMethod)(nil)

func (m RunMethod) String() string {
	switch m {
	case Docker:
		return "docker"
	case Podman:
		return "podman"
	}
	return "native"
}

// Set implements pflag.Value so --conjure can pick a run method.
func (m *RunMethod) Set(s string) error {
	switch s {
	case "native":
		*m = Native
	case "docker":
		*m = Docker
	case "podman":
		*m = Podman
	default:
		return errors.Errorf("unknown run method %q (native, docker, podman)", s)
	}
	return nil
}

// Type implements pflag.Value.
func (m *RunMethod) Type() string { return "method" }

// run executes one external tool in dir and returns its combined output.
// Failures come back as ErrCompiler with the tool output attached.
func (m RunMethod) run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	var cmd *exec.Cmd
	switch m {
	case Docker, Podman:
		runtime := "docker"
		if m == Podman {
			runtime = "podman"
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Wrap(err, "resolving work dir")
		}
		full := append([]string{"run", "--rm", "-v", abs + ":/work", "-w", "/work", containerImage, name}, args...)
		cmd = exec.CommandContext(ctx, runtime, full...)
	default:
		cmd = exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(ErrCompiler, "%s %v: %v\n%s", name, args, err, out)
	}
	return out, nil
}
