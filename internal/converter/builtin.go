package converter

import (
	"log"
	"strings"

	"github.com/ah-its-andy/convertbot/internal/ffmpeg"
)

// BuiltinDeps carries what builtin converters need from the outside.
type BuiltinDeps struct {
	Locator ToolLocator
	Runner  ffmpeg.Runner
	TempDir string
}

// RegisterBuiltinConverters registers the named builtin converters.
// names comes from BUILTIN_CONVERTERS, e.g. "image,document,media".
// It returns the number of converters registered.
func RegisterBuiltinConverters(r *Registry, names []string, deps BuiltinDeps) int {
	if len(names) == 0 {
		log.Println("BUILTIN_CONVERTERS empty - no builtin converters registered")
		return 0
	}

	registered := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch strings.ToLower(name) {
		case "image":
			r.Register(NewImageConverter())
		case "document":
			r.Register(NewDocumentConverter())
		case "media":
			r.Register(NewMediaConverter(deps.Locator, deps.Runner, deps.TempDir))
		default:
			log.Printf("Warning: unknown builtin converter '%s'", name)
			continue
		}
		log.Printf("Registered builtin converter: %s", name)
		registered++
	}

	log.Printf("Registered %d builtin converters", registered)
	return registered
}

// ListAvailableBuiltinConverters returns a list of all available builtin converter names
func ListAvailableBuiltinConverters() []string {
	return []string{"image", "document", "media"}
}
