// Package filter selects decoded DLT frames by log level and id.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muurk/dlttap/internal/config"
	"github.com/muurk/dlttap/internal/dlt"
)

// Filter passes frames that satisfy every configured criterion. The zero
// value passes everything.
//
// Criteria only apply to frames carrying an extended header; frames without
// one always pass. The level criterion ignores non-log messages and the ECU
// criterion ignores frames without an ECU id.
type Filter struct {
	minLevel dlt.MessageTypeInfo // InfoUndefined when unset
	apps     map[string]bool
	contexts map[string]bool
	ecus     map[string]bool
}

// New creates a filter. minLevel may be empty; id lists may be nil.
func New(minLevel string, apps, contexts, ecus []string) (*Filter, error) {
	f := &Filter{
		apps:     idSet(apps),
		contexts: idSet(contexts),
		ecus:     idSet(ecus),
	}
	if minLevel != "" {
		lvl, err := dlt.ParseLogLevel(minLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid minimum level: %w", err)
		}
		f.minLevel = lvl
	}
	return f, nil
}

// FromConfig creates a filter from the filter section of the config file.
func FromConfig(c *config.FilterConfig) (*Filter, error) {
	if c == nil {
		return &Filter{}, nil
	}
	return New(c.MinLevel, c.AppIDs, c.ContextIDs, c.EcuIDs)
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			if part = strings.TrimSpace(part); part != "" {
				set[part] = true
			}
		}
	}
	return set
}

// Match reports whether the frame passes the filter.
func (f *Filter) Match(fr *dlt.Frame) bool {
	if f == nil || fr.Extended == nil {
		return true
	}
	if f.minLevel != dlt.InfoUndefined && fr.Extended.MessageType == dlt.MessageTypeLog {
		lvl := fr.Extended.MessageTypeInfo
		// LogFatal sorts lowest; an undefined level never passes
		if lvl == dlt.InfoUndefined || lvl > f.minLevel {
			return false
		}
	}
	if f.apps != nil && !f.apps[fr.Extended.ApplicationID] {
		return false
	}
	if f.contexts != nil && !f.contexts[fr.Extended.ContextID] {
		return false
	}
	if f.ecus != nil && fr.Standard.EcuID != nil && !f.ecus[*fr.Standard.EcuID] {
		return false
	}
	return true
}

// Empty reports whether the filter passes every frame.
func (f *Filter) Empty() bool {
	return f == nil || (f.minLevel == dlt.InfoUndefined && f.apps == nil && f.contexts == nil && f.ecus == nil)
}

// String describes the active criteria
func (f *Filter) String() string {
	if f.Empty() {
		return "all"
	}
	var parts []string
	if f.minLevel != dlt.InfoUndefined {
		parts = append(parts, "level<="+f.minLevel.String())
	}
	for _, c := range []struct {
		name string
		set  map[string]bool
	}{{"app", f.apps}, {"ctx", f.contexts}, {"ecu", f.ecus}} {
		if c.set == nil {
			continue
		}
		ids := make([]string, 0, len(c.set))
		for id := range c.set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts = append(parts, c.name+"="+strings.Join(ids, ","))
	}
	return strings.Join(parts, " ")
}
