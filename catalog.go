package upgrademgr

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ModelCatalog maps hardware model names to support status and the image
// filename format their platform uses. It is loaded once at startup and
// passed to the components that need it; there is no process-global copy.
type ModelCatalog struct {
	entries []catalogEntry
}

type catalogEntry struct {
	patterns    []*regexp.Regexp
	imageFormat string
}

type catalogFile struct {
	Models []struct {
		Family string `json:"family"`
		Series []struct {
			Patterns    []string `json:"patterns"`
			ImageFormat string   `json:"image_format"`
		} `json:"series"`
	} `json:"models"`
}

// LoadModelCatalog reads the supported-models file. Patterns are matched
// case-insensitively against the start of the model name.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read model catalog %s failed", path)
	}
	return ParseModelCatalog(data)
}

// ParseModelCatalog builds a catalog from raw JSON.
func ParseModelCatalog(data []byte) (*ModelCatalog, error) {
	var parsed catalogFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "decode model catalog failed")
	}
	cat := &ModelCatalog{}
	for _, family := range parsed.Models {
		for _, series := range family.Series {
			entry := catalogEntry{imageFormat: series.ImageFormat}
			for _, p := range series.Patterns {
				re, err := regexp.Compile(`(?i)^(?:` + p + `)`)
				if err != nil {
					return nil, errors.Wrapf(err, "bad model pattern %q", p)
				}
				entry.patterns = append(entry.patterns, re)
			}
			cat.entries = append(cat.entries, entry)
		}
	}
	return cat, nil
}

// Supported reports whether the model matches any catalog pattern. Unknown
// or empty models are never supported.
func (c *ModelCatalog) Supported(model string) bool {
	_, ok := c.match(model)
	return ok
}

// ImagePattern returns an anchored regexp matching image filenames compatible
// with the model, derived from the series image format. ok is false when the
// model is unsupported or its series declares no format.
func (c *ModelCatalog) ImagePattern(model string) (*regexp.Regexp, bool) {
	entry, ok := c.match(model)
	if !ok || entry.imageFormat == "" {
		return nil, false
	}
	// cat9k_iosxe.<release>.SPA.bin becomes ^cat9k_iosxe\..*\.SPA\.bin$
	quoted := regexp.QuoteMeta(entry.imageFormat)
	quoted = strings.ReplaceAll(quoted, regexp.QuoteMeta("<release>"), ".*")
	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return nil, false
	}
	return re, true
}

func (c *ModelCatalog) match(model string) (catalogEntry, bool) {
	if c == nil || model == "" || model == "Unknown" {
		return catalogEntry{}, false
	}
	for _, entry := range c.entries {
		for _, re := range entry.patterns {
			if re.MatchString(model) {
				return entry, true
			}
		}
	}
	return catalogEntry{}, false
}
