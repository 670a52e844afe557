// Package buildinfo carries build-time metadata separate from user configuration.
package buildinfo

// UnknownValue stands in for metadata the build did not inject.
const UnknownValue = "unknown"

// BuildInfo exposes build metadata to components that report it.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetSystemID() string
}

// Context holds metadata injected at startup through -ldflags.
type Context struct {
	// Version is the git tag the binary was built from
	Version string
	// BuildDate is when the binary was built
	BuildDate string
	// SystemID anonymously identifies this installation in telemetry
	SystemID string
}

// NewContext returns a Context with the given values.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, SystemID: systemID}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

func (c *Context) GetSystemID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.SystemID)
}
