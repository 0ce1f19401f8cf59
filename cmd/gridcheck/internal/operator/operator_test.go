// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDescription(t *testing.T) {
	output := `#
# gridID 1
#
gridtype  = lonlat
gridsize  = 64800
xsize     = 360
ysize     = 180
xname     = 'lon'
yunits    = "degrees_north"
this line has no separator
          = orphaned value
`
	desc := ParseDescription(output)

	assert.Equal(t, "lonlat", desc["gridtype"])
	assert.Equal(t, "64800", desc["gridsize"])
	assert.Equal(t, "lon", desc["xname"], "single quotes are stripped")
	assert.Equal(t, "degrees_north", desc["yunits"], "double quotes are stripped")
	assert.NotContains(t, desc, "")
	assert.Len(t, desc, 6)
}

func TestParseDescription_Empty(t *testing.T) {
	assert.Empty(t, ParseDescription(""))
	assert.Empty(t, ParseDescription("# comment only\n"))
}
