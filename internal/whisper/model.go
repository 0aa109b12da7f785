package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultModel = "base.en"

type Model struct {
	Name     string
	FileName string
}

type ResolvedModel struct {
	Name         string
	Path         string
	IsCustomPath bool
}

var registry = map[string]Model{
	"tiny":     {Name: "tiny", FileName: "ggml-tiny.bin"},
	"tiny.en":  {Name: "tiny.en", FileName: "ggml-tiny.en.bin"},
	"base":     {Name: "base", FileName: "ggml-base.bin"},
	"base.en":  {Name: "base.en", FileName: "ggml-base.en.bin"},
	"small":    {Name: "small", FileName: "ggml-small.bin"},
	"small.en": {Name: "small.en", FileName: "ggml-small.en.bin"},
	"medium":   {Name: "medium", FileName: "ggml-medium.bin"},
	"large-v3": {Name: "large-v3", FileName: "ggml-large-v3.bin"},
}

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

// ResolveModel maps a registry name or explicit file path to a model path.
// Existence is not checked here; the engine reports a missing model.
func ResolveModel(modelRef, modelDir string) (ResolvedModel, error) {
	modelRef = strings.TrimSpace(modelRef)
	if modelRef == "" {
		modelRef = DefaultModel
	}

	if model, ok := LookupModel(modelRef); ok {
		if strings.TrimSpace(modelDir) == "" {
			return ResolvedModel{}, errors.New("model directory must not be empty for named model")
		}
		return ResolvedModel{Name: model.Name, Path: filepath.Join(modelDir, model.FileName)}, nil
	}

	if !looksLikePath(modelRef) {
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", modelRef, strings.Join(ModelNames(), ", "))
	}

	return ResolvedModel{
		Name:         filepath.Base(modelRef),
		Path:         filepath.Clean(modelRef),
		IsCustomPath: true,
	}, nil
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) || strings.HasSuffix(strings.ToLower(input), ".bin")
}
