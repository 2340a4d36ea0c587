// Package formats registers all built-in trace formats.
package formats

import (
	// Register trace readers
	_ "firestige.xyz/proclat/internal/source/pcapfile"
	_ "firestige.xyz/proclat/internal/source/pdml"
	_ "firestige.xyz/proclat/internal/source/tsharkjson"
)
