package docker

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/husseinmohab/radical-faas/internal/core/functions"
)

const (
	shimFile         = "wrapper.py"
	requirementsFile = "requirements.txt"
)

//go:embed shim/wrapper.py
var shimScript string

// Dockerfile renders the image manifest for a function.
func Dockerfile(runtime string, withRequirements bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", runtime)
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY . .\n")
	if withRequirements {
		fmt.Fprintf(&b, "RUN pip install --no-cache-dir -r %s\n", requirementsFile)
	}
	fmt.Fprintf(&b, "CMD [\"python\", %q]\n", shimFile)
	return b.String()
}

// sourceFile names the file the user's code is written to.
func sourceFile(handler string) (string, error) {
	ref, err := functions.ParseHandlerRef(handler)
	if err != nil {
		return "", err
	}
	if ref.Module+".py" == shimFile {
		return "", fmt.Errorf("%w: module %q collides with the execution shim", functions.ErrInvalidHandlerRef, ref.Module)
	}
	return ref.Module + ".py", nil
}

// writeBuildContext lays out the source, the shim and the Dockerfile in dir.
func writeBuildContext(dir, source string, spec functions.FunctionSpec) error {
	files := map[string]string{
		source:       spec.Code,
		shimFile:     shimScript,
		"Dockerfile": Dockerfile(spec.Runtime, len(spec.Dependencies) > 0),
	}
	if len(spec.Dependencies) > 0 {
		files[requirementsFile] = strings.Join(spec.Dependencies, "\n") + "\n"
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
