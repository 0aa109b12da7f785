package whisper

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// EnginePathEnv overrides engine discovery.
const EnginePathEnv = "VOXSTT_WHISPER_PATH"

// ResolveEnginePath finds the whisper executable for the voxstt binary at
// selfExecutable: the environment override first, then well-known
// locations beside the binary, then PATH.
func ResolveEnginePath(selfExecutable string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return override, fmt.Errorf("%s is not executable: %w", EnginePathEnv, err)
		}
		return override, nil
	}

	candidates := EnginePathCandidates(selfExecutable)
	for _, candidate := range candidates {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	if found, err := exec.LookPath(engineBinaryName()); err == nil {
		return found, nil
	}

	expected := ""
	if len(candidates) > 0 {
		expected = candidates[0]
	}
	return expected, fmt.Errorf("%w: looked near %s and in PATH for %s", ErrEngineNotInstalled, selfExecutable, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	if strings.TrimSpace(selfExecutable) == "" {
		return nil
	}

	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "whisper.cpp", "build", "bin", engineName),
		filepath.Join(binDir, "whisper.cpp", legacyBinaryName()),
		filepath.Join(binDir, engineName),
	}
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

// legacyBinaryName is the name older whisper.cpp builds used for the CLI.
func legacyBinaryName() string {
	if runtime.GOOS == "windows" {
		return "main.exe"
	}
	return "main"
}

func ensureExecutable(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("engine path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
