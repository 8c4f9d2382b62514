package mobi

import (
	"log/slog"
	"time"
)

type buildConfig struct {
	limits           Limits
	compression      Compression
	compressor       Compressor
	maxImageSize     int
	indexMode        IndexMode
	thumbnail        bool
	preferAuthorSort bool
	endRecords       bool
	uid              uint32
	uidSet           bool
	now              func() time.Time
	log              *slog.Logger
	onWarning        WarningHandler
}

type Option func(*buildConfig)

func defaultBuildConfig() buildConfig {
	return buildConfig{
		limits:       defaultLimits(),
		compression:  CompPalmDOC,
		maxImageSize: OtherMaxImageSize,
		indexMode:    IndexAuto,
		thumbnail:    true,
		now:          time.Now,
		log:          slog.New(slog.DiscardHandler),
	}
}

func WithLimits(l Limits) Option {
	return func(c *buildConfig) { c.limits = l }
}

// WithCompression selects the compression code written to record 0 and the
// matching built-in compressor.
func WithCompression(comp Compression) Option {
	return func(c *buildConfig) { c.compression = comp }
}

// WithCompressor replaces the transform applied to each text record. The
// compression code written to record 0 still comes from WithCompression.
func WithCompressor(comp Compressor) Option {
	return func(c *buildConfig) { c.compressor = comp }
}

// WithMaxImageSize sets the byte ceiling for image records. Larger images
// are re-encoded until they fit.
func WithMaxImageSize(n int) Option {
	return func(c *buildConfig) { c.maxImageSize = n }
}

func WithIndexMode(m IndexMode) Option {
	return func(c *buildConfig) { c.indexMode = m }
}

// WithThumbnail controls whether a thumbnail record is generated from the
// cover image.
func WithThumbnail(v bool) Option {
	return func(c *buildConfig) { c.thumbnail = v }
}

// WithPreferAuthorSort writes Creator.FileAs instead of Creator.Name when set.
func WithPreferAuthorSort(v bool) Option {
	return func(c *buildConfig) { c.preferAuthorSort = v }
}

// WithEndRecords adds FLIS and FCIS records ahead of the end-of-file marker.
func WithEndRecords(v bool) Option {
	return func(c *buildConfig) { c.endRecords = v }
}

// WithUID fixes the unique id written to the MOBI header. By default it is
// random.
func WithUID(uid uint32) Option {
	return func(c *buildConfig) { c.uid, c.uidSet = uid, true }
}

// WithClock sets the time source for the database timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *buildConfig) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *buildConfig) { c.log = l }
}

// WithWarningHandler receives every recoverable anomaly in addition to the
// log line written for it.
func WithWarningHandler(h WarningHandler) Option {
	return func(c *buildConfig) { c.onWarning = h }
}

func (c *buildConfig) warn(w Warning) {
	c.log.Warn(w.Message, "kind", w.Kind.String(), "subject", w.Subject)
	if c.onWarning != nil {
		c.onWarning(w)
	}
}
