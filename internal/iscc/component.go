package iscc

// Component type headers (first two symbols of a component).
const (
	HeaderMeta         = "CC"
	HeaderText         = "CT"
	HeaderTextPartial  = "Ct"
	HeaderImage        = "CY"
	HeaderImagePartial = "Ci"
	HeaderAudio        = "CA"
	HeaderAudioPartial = "Ca"
	HeaderVideo        = "CV"
	HeaderVideoPartial = "Cv"
	HeaderMixed        = "CM"
	HeaderMixedPartial = "Cm"
	HeaderData         = "CD"
	HeaderInstance     = "CR"
)

var componentHeaders = map[string]struct{}{
	HeaderMeta:         {},
	HeaderText:         {},
	HeaderTextPartial:  {},
	HeaderImage:        {},
	HeaderImagePartial: {},
	HeaderAudio:        {},
	HeaderAudioPartial: {},
	HeaderVideo:        {},
	HeaderVideoPartial: {},
	HeaderMixed:        {},
	HeaderMixedPartial: {},
	HeaderData:         {},
	HeaderInstance:     {},
}

// IsComponentHeader reports whether header is a registered component type.
func IsComponentHeader(header string) bool {
	_, ok := componentHeaders[header]
	return ok
}

// IsInstance reports whether a component carries an exact-bytes instance hash.
func IsInstance(component string) bool {
	return len(component) >= 2 && component[:2] == HeaderInstance
}
