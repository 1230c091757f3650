package cmd

import (
	"log/slog"
	"strings"

	"github.com/dukex/gridfn/pkg/catalog"
	"github.com/dukex/gridfn/pkg/protocol"
)

// NewCatalog resolves regions from a redis:// URL, a YAML file path, or,
// when source is empty, an empty in-memory catalog.
//
// nolint:ireturn // the catalog backend is chosen at runtime
func NewCatalog(logger *slog.Logger, source string) (protocol.RegionLookup, error) {
	switch {
	case strings.HasPrefix(source, "redis://"), strings.HasPrefix(source, "rediss://"):
		regions, err := catalog.NewRedisFromURL(source, logger)
		if err != nil {
			return nil, err
		}

		return regions, nil
	case source == "":
		return catalog.NewMemory(logger), nil
	default:
		regions, err := catalog.LoadFile(logger, source)
		if err != nil {
			return nil, err
		}

		return regions, nil
	}
}
