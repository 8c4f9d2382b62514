package mdocx

type readConfig struct {
	limits       Limits
	verifyHashes bool
}

type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

// WithVerifyHashes controls whether non-zero MediaItem.SHA256 fields are
// checked against the data. It is on by default.
func WithVerifyHashes(v bool) ReadOption {
	return func(c *readConfig) { c.verifyHashes = v }
}

type writeConfig struct {
	limits        Limits
	verifyHashes  bool
	fillDigests   bool
	markdownCodec Codec
	mediaCodec    Codec
}

type WriteOption func(*writeConfig)

func WithWriteLimits(l Limits) WriteOption {
	return func(c *writeConfig) { c.limits = l }
}

func WithVerifyHashesOnWrite(v bool) WriteOption {
	return func(c *writeConfig) { c.verifyHashes = v }
}

// WithAutoPopulateSHA256 makes Write fill zero MediaItem.SHA256 fields in
// place. It is on by default.
func WithAutoPopulateSHA256(v bool) WriteOption {
	return func(c *writeConfig) { c.fillDigests = v }
}

// WithCodec selects the codec of both sections.
func WithCodec(c Codec) WriteOption {
	return func(cfg *writeConfig) { cfg.markdownCodec, cfg.mediaCodec = c, c }
}

func WithMarkdownCodec(c Codec) WriteOption {
	return func(cfg *writeConfig) { cfg.markdownCodec = c }
}

func WithMediaCodec(c Codec) WriteOption {
	return func(cfg *writeConfig) { cfg.mediaCodec = c }
}
