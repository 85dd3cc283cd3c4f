package fxbank

// Spline channels are cooked as fixed-step piecewise linear curves, since
// the runtime only interpolates linearly.

const (
	sampleCount    = 32
	maxSearchSteps = 12
	timeTolerance  = 1e-4
)

type vec2 struct{ x, y float32 }

func lerpf(a, b, t float32) float32 { return a + t*(b-a) }

func lerp(a, b vec2, t float32) vec2 {
	return vec2{lerpf(a.x, b.x, t), lerpf(a.y, b.y, t)}
}

// bezier evaluates a cubic Bezier curve with De Casteljau's algorithm.
func bezier(t float32, p0, c0, c1, p1 vec2) vec2 {
	a := lerp(p0, c0, t)
	b := lerp(c0, c1, t)
	c := lerp(c1, p1, t)
	d := lerp(a, b, t)
	e := lerp(b, c, t)
	return lerp(d, e, t)
}

// curve is one Bezier segment between two spline keyframes.
type curve struct {
	prev, cur      Keyframe
	p0, c0, c1, p1 vec2
	maxTime        float32
}

func segment(ch RampChannel, i int) curve {
	prev, cur := ch.Keyframes[i-1], ch.Keyframes[i]
	c := curve{
		prev: prev,
		cur:  cur,
		p0:   vec2{prev.Time, prev.Value},
		p1:   vec2{cur.Time, cur.Value},
	}
	c.c0 = ch.Handles[i-1].Start.start(c.p0, c.p1)
	c.c1 = ch.Handles[i].End.end(c.p0, c.p1)
	c.maxTime = max(c.p0.x, c.c0.x, c.c1.x, c.p1.x)
	return c
}

func (c *curve) at(t float32) vec2 { return bezier(t, c.p0, c.c0, c.c1, c.p1) }

// search bisects t in [*lower, upper] for the point at time want. The
// curve is monotonic in time, so the lower bound carries over to the next
// search on the same curve.
func (c *curve) search(want float32, lower *float32, upper float32) vec2 {
	t := (*lower + upper) / 2
	pt := c.at(t)
	for i := 0; i < maxSearchSteps && abs32(pt.x-want) >= timeTolerance; i++ {
		if want > pt.x {
			*lower = t
		} else {
			upper = t
		}
		t = (*lower + upper) / 2
		pt = c.at(t)
	}
	return pt
}

func (c *curve) sample(pt vec2, color bool) Keyframe {
	k := Keyframe{Time: pt.x, Value: pt.y}
	if !color {
		return k
	}
	k.Value = max(0, min(k.Value, 255))
	dur := c.cur.Time - c.prev.Time
	if dur <= 0 {
		k.RGB = c.prev.RGB
		return k
	}
	u := (pt.x - c.prev.Time) / dur
	k.RGB = rgba(
		lerpByte(c.prev.RGB.r(), c.cur.RGB.r(), u),
		lerpByte(c.prev.RGB.g(), c.cur.RGB.g(), u),
		lerpByte(c.prev.RGB.b(), c.cur.RGB.b(), u),
		0,
	)
	return k
}

func lerpByte(a, b uint8, t float32) uint8 {
	v := int(a) + int((float32(b)-float32(a))*t)
	return uint8(max(0, min(v, 255))) //nolint:gosec // clamped
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// resample returns the keyframes of ch as sampleCount evenly spaced
// linear keys. Channels that are not splines, or have too few keys to
// form a curve, are returned unchanged.
func resample(ch RampChannel, color bool) []Keyframe {
	keys := ch.Keyframes
	if ch.Type != RampSpline || len(keys) < 2 || len(ch.Handles) != len(keys) {
		return keys
	}
	maxTime := keys[len(keys)-1].Time
	step := maxTime / (sampleCount - 1)

	out := make([]Keyframe, sampleCount)
	seg := 1
	c := segment(ch, seg)
	out[0] = c.sample(c.at(0), color)

	lower := float32(0)
	for i := 1; i < sampleCount-1; i++ {
		want := min(float32(i)*step, maxTime)
		for c.maxTime < want && seg < len(keys)-1 {
			seg++
			c = segment(ch, seg)
			lower = 0
		}
		out[i] = c.sample(c.search(want, &lower, 1), color)
	}
	out[sampleCount-1] = c.sample(c.at(1), color)
	return out
}
