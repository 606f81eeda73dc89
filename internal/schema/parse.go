package schema

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// Definition files use the subset of INI syntax fluid-settings needs:
//
//	[app::cache_size]
//	default = 100
//	validator = integer
//	help = maximum number of cached entries
//
// A line starting with ';' or '#' is a comment. Keys recognised inside
// a section are "default", "validator" and "help"; unrecognised keys
// are warned about and ignored, matching the original's
// warn-and-continue behaviour on a malformed option.
func loadDefinitionFile(reg *Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		section string
		def     Definition
		have    bool
	)

	flush := func() {
		if have {
			canon, err := settings.CanonicalizeName(section)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Str("name", section).Msg("schema: skipping invalid setting name")
			} else {
				def.Name = canon
				reg.add(def)
			}
		}
		def = Definition{}
		have = false
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section = strings.TrimSpace(line[1 : len(line)-1])
			have = true
			continue
		}
		if !have {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("schema: key outside of any section, ignored")
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("schema: malformed line, ignored")
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "default":
			def.Default = &value
		case "help":
			def.Help = value
		case "validator":
			v, err := newValidator(value)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Int("line", lineNo).Msg("schema: unknown validator, ignored")
				continue
			}
			def.Validator = v
		default:
			log.Warn().Str("file", path).Int("line", lineNo).Str("key", key).Msg("schema: unrecognised key, ignored")
		}
	}
	flush()

	return scanner.Err()
}
