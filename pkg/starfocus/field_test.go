package starfocus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zoneCenters are pixel positions inside each zone of a 300x300 frame.
var zoneCenters = map[ZonePosition][2]float64{
	ZoneTopLeft:     {30, 30},
	ZoneTop:         {150, 30},
	ZoneTopRight:    {270, 30},
	ZoneLeft:        {30, 150},
	ZoneCenter:      {150, 150},
	ZoneRight:       {270, 150},
	ZoneBottomLeft:  {30, 270},
	ZoneBottom:      {150, 270},
	ZoneBottomRight: {270, 270},
}

// tiltedField places three stars of the given HFD in every zone.
func tiltedField(hfd map[ZonePosition]float64) []Star {
	var stars []Star
	for pos, c := range zoneCenters {
		h, ok := hfd[pos]
		if !ok {
			continue
		}
		for i := 0; i < 3; i++ {
			stars = append(stars, Star{X: c[0] + float64(i), Y: c[1], HFD: h, FWHM: h * 0.9})
		}
	}
	return stars
}

func TestAnalyzeField_Tilt(t *testing.T) {
	t.Parallel()

	stars := tiltedField(map[ZonePosition]float64{
		ZoneTopLeft:     2,
		ZoneTop:         2.5,
		ZoneTopRight:    3,
		ZoneLeft:        2.5,
		ZoneCenter:      2,
		ZoneRight:       2.5,
		ZoneBottomLeft:  2.5,
		ZoneBottom:      2.5,
		ZoneBottomRight: 4,
	})
	require.Len(t, stars, 27)

	field := AnalyzeField(stars, 300, 300)
	require.NotNil(t, field)
	assert.Len(t, field.Zones, 9)
	for pos, z := range field.Zones {
		assert.Equal(t, 3, z.StarCount, zoneLabels[pos])
		assert.Equal(t, zoneLabels[pos], z.Label)
	}
	assert.Equal(t, 4.0, field.Zones[ZoneBottomRight].MedianHFD)
	assert.InDelta(t, 3.6, field.Zones[ZoneBottomRight].MedianFWHM, 1e-12)

	assert.InDelta(t, 100, field.TiltPct, 1e-9)
	assert.InDelta(t, 34.375, field.OffAxisPct, 1e-9)
	assert.Equal(t, "TL", field.BestCorner)
	assert.Equal(t, "BR", field.WorstCorner)
	assert.True(t, field.Reliable)
}

func TestAnalyzeField_Unreliable(t *testing.T) {
	t.Parallel()

	t.Run("missing corners", func(t *testing.T) {
		t.Parallel()
		stars := tiltedField(map[ZonePosition]float64{
			ZoneTopLeft:  2,
			ZoneCenter:   2,
			ZoneTop:      2,
			ZoneLeft:     2,
			ZoneRight:    2,
			ZoneBottom:   2,
			ZoneTopRight: 3,
		})
		field := AnalyzeField(stars, 300, 300)
		require.NotNil(t, field)
		assert.False(t, field.Reliable)
		assert.InDelta(t, 50, field.TiltPct, 1e-9)
		assert.Equal(t, "TR", field.WorstCorner)
	})

	t.Run("one usable corner", func(t *testing.T) {
		t.Parallel()
		stars := tiltedField(map[ZonePosition]float64{ZoneCenter: 2, ZoneTopLeft: 3})
		field := AnalyzeField(stars, 300, 300)
		require.NotNil(t, field)
		assert.Zero(t, field.TiltPct)
		assert.Empty(t, field.BestCorner)
		assert.InDelta(t, 50, field.OffAxisPct, 1e-9)
		assert.False(t, field.Reliable)
	})

	t.Run("empty center", func(t *testing.T) {
		t.Parallel()
		stars := tiltedField(map[ZonePosition]float64{ZoneTopLeft: 2, ZoneBottomRight: 3})
		field := AnalyzeField(stars, 300, 300)
		require.NotNil(t, field)
		assert.False(t, field.Reliable)
		assert.Zero(t, field.TiltPct)
		assert.Zero(t, field.OffAxisPct)
	})

	t.Run("no stars", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, AnalyzeField(nil, 300, 300))
	})
}

func TestAnalyzeField_PrefersFittedFWHM(t *testing.T) {
	t.Parallel()

	stars := []Star{
		{X: 150, Y: 150, HFD: 2, FWHM: 9, PSF: &PSFModel{FWHMPixels: 2.2}},
		{X: 151, Y: 150, HFD: 2, FWHM: 9, PSF: &PSFModel{FWHMPixels: 2.4}},
		{X: 152, Y: 150, HFD: 2, FWHM: 2.6},
	}
	field := AnalyzeField(stars, 300, 300)
	require.NotNil(t, field)
	assert.InDelta(t, 2.4, field.Zones[ZoneCenter].MedianFWHM, 1e-12)
}

func TestClassifyZone(t *testing.T) {
	t.Parallel()

	for pos, c := range zoneCenters {
		assert.Equal(t, pos, classifyZone(c[0], c[1], 75, 225, 75, 225), zoneLabels[pos])
	}
	// Band edges belong to the inner zone on the low side and the outer zone on the high side.
	assert.Equal(t, ZoneCenter, classifyZone(75, 75, 75, 225, 75, 225))
	assert.Equal(t, ZoneBottomRight, classifyZone(225, 225, 75, 225, 75, 225))
}

func TestZonePositionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Center", ZoneCenter.String())
	assert.Equal(t, "BR", ZoneBottomRight.String())
	assert.Equal(t, "unknown", ZonePosition(9).String())
	assert.Equal(t, "unknown", ZonePosition(-1).String())
}
