package flowstore

import "github.com/unkn0wn-root/flowstore/logging"

// Fields is a minimal structured field map for logs.
type Fields = logging.Fields

// Logger is the leveled logger used by stores. See package logging and the
// adapters under log/.
type Logger = logging.Logger

type NopLogger = logging.NopLogger
