package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

// Exec runs an external program with the concatenated inputs on stdin and
// takes its stdout as the artifact.
//
// The program runs with only the environment listed in its params and an
// empty working directory. The program is resolved once (PATH lookup for
// bare names, absolute path otherwise) and that exact file is both pinned in
// Tools and executed. Apply re-hashes it before every run.
//
// Params: program (path or name on PATH), arg.0..arg.N, env.NAME.
type Exec struct {
	def     Definition
	program string
	path    string
	pinned  identity.Identity
	args    []string
	env     []string
}

const execProgramTool = "program"

func init() {
	MustRegister("exec", func(def Definition) (Transformation, error) {
		program := def.Param("program", "")
		if program == "" {
			return nil, fmt.Errorf("program is required")
		}
		path, err := resolveProgram(program)
		if err != nil {
			return nil, err
		}
		binID, err := hashProgram(path)
		if err != nil {
			return nil, err
		}

		e := &Exec{def: def, program: program, path: path, pinned: binID}
		for i := 0; ; i++ {
			v, ok := def.Params["arg."+strconv.Itoa(i)]
			if !ok {
				break
			}
			e.args = append(e.args, v)
		}
		for k, v := range def.Params {
			switch {
			case k == "program":
			case strings.HasPrefix(k, "arg."):
				if _, err := strconv.Atoi(strings.TrimPrefix(k, "arg.")); err != nil {
					return nil, fmt.Errorf("invalid argument key %q", k)
				}
			case strings.HasPrefix(k, "env."):
				e.env = append(e.env, strings.TrimPrefix(k, "env.")+"="+v)
			default:
				return nil, fmt.Errorf("unknown parameter %q", k)
			}
		}
		if n := countArgs(def.Params); n != len(e.args) {
			return nil, fmt.Errorf("argument indexes must be contiguous from arg.0")
		}
		sort.Strings(e.env)
		e.def.Tools = map[string]string{execProgramTool: binID.String()}
		return e, nil
	})
}

// resolveProgram turns program into the absolute path of the file that
// will run. Names without a separator are looked up on the caller's PATH.
func resolveProgram(program string) (string, error) {
	path, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("resolve program: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve program: %w", err)
	}
	return abs, nil
}

func hashProgram(path string) (identity.Identity, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return identity.Undef, fmt.Errorf("read program: %w", err)
	}
	return identity.Identify(bin, identity.Default)
}

func countArgs(params map[string]string) int {
	n := 0
	for k := range params {
		if strings.HasPrefix(k, "arg.") {
			n++
		}
	}
	return n
}

func (e *Exec) Definition() Definition { return e.def }

func (e *Exec) Apply(ctx context.Context, inputs [][]byte) ([]byte, error) {
	got, err := hashProgram(e.path)
	if err != nil {
		return nil, err
	}
	if got != e.pinned {
		return nil, proof.NewError(proof.KindTransformationMismatch, "PROOF-TF-020",
			fmt.Sprintf("transform: program %s changed since it was pinned (pinned %s, now %s)", e.path, e.pinned, got))
	}

	dir, err := os.MkdirTemp("", "xdao-exec-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, e.path, e.args...)
	cmd.Args[0] = e.program
	cmd.Dir = dir
	cmd.Env = append([]string{}, e.env...)
	cmd.Stdin = bytes.NewReader(bytes.Join(inputs, nil))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exec %s: %w: %s", e.program, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
