package psd

import "math"

// rgb is a color with channels in 0..1
type rgb [3]float64

// blendFunc mixes a source color over a backdrop color, ignoring alpha
type blendFunc func(src, dst rgb) rgb

// separable lifts a per-channel function to a blendFunc
func separable(f func(s, d float64) float64) blendFunc {
	return func(src, dst rgb) rgb {
		return rgb{f(src[0], dst[0]), f(src[1], dst[1]), f(src[2], dst[2])}
	}
}

var blendFuncs = map[BlendMode]blendFunc{
	BlendNormal:       blendNormal,
	BlendDissolve:     blendNormal,
	BlendDarken:       separable(math.Min),
	BlendMultiply:     separable(multiplyChannel),
	BlendColorBurn:    separable(colorBurnChannel),
	BlendLinearBurn:   separable(linearBurnChannel),
	BlendDarkerColor:  blendDarkerColor,
	BlendLighten:      separable(math.Max),
	BlendScreen:       separable(screenChannel),
	BlendColorDodge:   separable(colorDodgeChannel),
	BlendLinearDodge:  separable(linearDodgeChannel),
	BlendLighterColor: blendLighterColor,
	BlendOverlay:      separable(overlayChannel),
	BlendSoftLight:    separable(softLightChannel),
	BlendHardLight:    separable(hardLightChannel),
	BlendVividLight:   separable(vividLightChannel),
	BlendLinearLight:  separable(linearLightChannel),
	BlendPinLight:     separable(pinLightChannel),
	BlendHardMix:      separable(hardMixChannel),
	BlendDifference:   separable(differenceChannel),
	BlendExclusion:    separable(exclusionChannel),
	BlendSubtract:     separable(subtractChannel),
	BlendDivide:       separable(divideChannel),
	BlendHue:          blendHue,
	BlendSaturation:   blendSaturation,
	BlendColor:        blendColor,
	BlendLuminosity:   blendLuminosity,
}

// blendFuncFor returns normal blending for pass through and unknown modes
func blendFuncFor(mode BlendMode) blendFunc {
	if f, ok := blendFuncs[mode]; ok {
		return f
	}
	return blendNormal
}

func blendNormal(src, _ rgb) rgb { return src }

func blendDarkerColor(src, dst rgb) rgb {
	if src[0]+src[1]+src[2] < dst[0]+dst[1]+dst[2] {
		return src
	}
	return dst
}

func blendLighterColor(src, dst rgb) rgb {
	if src[0]+src[1]+src[2] > dst[0]+dst[1]+dst[2] {
		return src
	}
	return dst
}

func blendHue(src, dst rgb) rgb        { return setLum(setSat(src, sat(dst)), lum(dst)) }
func blendSaturation(src, dst rgb) rgb { return setLum(setSat(dst, sat(src)), lum(dst)) }
func blendColor(src, dst rgb) rgb      { return setLum(src, lum(dst)) }
func blendLuminosity(src, dst rgb) rgb { return setLum(dst, lum(src)) }

func multiplyChannel(s, d float64) float64    { return s * d }
func screenChannel(s, d float64) float64      { return s + d - s*d }
func overlayChannel(s, d float64) float64     { return hardLightChannel(d, s) }
func linearBurnChannel(s, d float64) float64  { return clamp(s + d - 1) }
func linearDodgeChannel(s, d float64) float64 { return clamp(s + d) }
func differenceChannel(s, d float64) float64  { return math.Abs(d - s) }
func exclusionChannel(s, d float64) float64   { return s + d - 2*s*d }
func subtractChannel(s, d float64) float64    { return clamp(d - s) }

func hardMixChannel(s, d float64) float64 {
	if s+d >= 1 {
		return 1
	}
	return 0
}

func divideChannel(s, d float64) float64 {
	if s == 0 {
		if d == 0 {
			return 0
		}
		return 1
	}
	return clamp(d / s)
}

func colorBurnChannel(s, d float64) float64 {
	switch {
	case d >= 1:
		return 1
	case s <= 0:
		return 0
	}
	return 1 - math.Min(1, (1-d)/s)
}

func colorDodgeChannel(s, d float64) float64 {
	switch {
	case d <= 0:
		return 0
	case s >= 1:
		return 1
	}
	return math.Min(1, d/(1-s))
}

func hardLightChannel(s, d float64) float64 {
	if s <= 0.5 {
		return d * 2 * s
	}
	t := 2*s - 1
	return d + t - d*t
}

func softLightChannel(s, d float64) float64 {
	if s <= 0.5 {
		return d - (1-2*s)*d*(1-d)
	}
	var g float64
	if d <= 0.25 {
		g = ((16*d-12)*d + 4) * d
	} else {
		g = math.Sqrt(d)
	}
	return d + (2*s-1)*(g-d)
}

func vividLightChannel(s, d float64) float64 {
	if s <= 0.5 {
		return colorBurnChannel(2*s, d)
	}
	return colorDodgeChannel(2*s-1, d)
}

func linearLightChannel(s, d float64) float64 {
	return clamp(d + 2*s - 1)
}

func pinLightChannel(s, d float64) float64 {
	if s <= 0.5 {
		return math.Min(d, 2*s)
	}
	return math.Max(d, 2*s-1)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// non-separable helpers

func lum(c rgb) float64 {
	return 0.3*c[0] + 0.59*c[1] + 0.11*c[2]
}

func clipColor(c rgb) rgb {
	l := lum(c)
	n := math.Min(c[0], math.Min(c[1], c[2]))
	x := math.Max(c[0], math.Max(c[1], c[2]))
	for i := range c {
		if n < 0 && l != n {
			c[i] = l + (c[i]-l)*l/(l-n)
		}
		if x > 1 && x != l {
			c[i] = l + (c[i]-l)*(1-l)/(x-l)
		}
	}
	return c
}

func setLum(c rgb, l float64) rgb {
	d := l - lum(c)
	return clipColor(rgb{c[0] + d, c[1] + d, c[2] + d})
}

func sat(c rgb) float64 {
	return math.Max(c[0], math.Max(c[1], c[2])) - math.Min(c[0], math.Min(c[1], c[2]))
}

func setSat(c rgb, s float64) rgb {
	maxI, minI := 0, 0
	for i := 1; i < 3; i++ {
		if c[i] > c[maxI] {
			maxI = i
		}
		if c[i] < c[minI] {
			minI = i
		}
	}
	if maxI == minI {
		return rgb{}
	}
	midI := 3 - maxI - minI
	var out rgb
	out[midI] = (c[midI] - c[minI]) * s / (c[maxI] - c[minI])
	out[maxI] = s
	return out
}
