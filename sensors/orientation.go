package sensors

import (
	"strings"

	"github.com/pkg/errors"
)

// Orientation maps sensor axes to body axes: body[i] = Sign[i] * sensor[Axis[i]].
type Orientation struct {
	Axis [3]int
	Sign [3]float64
}

// IdentityOrientation is a sensor mounted with its axes along the body axes.
var IdentityOrientation = Orientation{Axis: [3]int{0, 1, 2}, Sign: [3]float64{1, 1, 1}}

// ParseOrientation reads a mapping such as "x,-y,-z" or "y,x,-z", giving
// for each of body x, y and z the sensor axis it lies along.
func ParseOrientation(s string) (Orientation, error) {
	var o Orientation
	parts := strings.Split(strings.ToLower(strings.Replace(s, " ", "", -1)), ",")
	if len(parts) != 3 {
		return o, errors.Errorf("sensors: orientation %q needs three axes", s)
	}
	var used [3]bool
	for i, p := range parts {
		o.Sign[i] = 1
		switch {
		case strings.HasPrefix(p, "-"):
			o.Sign[i] = -1
			p = p[1:]
		case strings.HasPrefix(p, "+"):
			p = p[1:]
		}
		if len(p) != 1 || p[0] < 'x' || p[0] > 'z' {
			return o, errors.Errorf("sensors: bad axis %q in orientation %q", parts[i], s)
		}
		o.Axis[i] = int(p[0] - 'x')
		if used[o.Axis[i]] {
			return o, errors.Errorf("sensors: axis %s used twice in orientation %q", p, s)
		}
		used[o.Axis[i]] = true
	}
	if o.det() < 0 {
		return o, errors.Errorf("sensors: orientation %q is a mirror image, not a rotation", s)
	}
	return o, nil
}

// det is the determinant of the mapping, +1 for a rotation.
func (o Orientation) det() float64 {
	d := o.Sign[0] * o.Sign[1] * o.Sign[2]
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if o.Axis[i] > o.Axis[j] {
				d = -d
			}
		}
	}
	return d
}

// Apply rotates a sensor frame vector into the body frame.
func (o Orientation) Apply(v [3]float64) [3]float64 {
	return [3]float64{
		o.Sign[0] * v[o.Axis[0]],
		o.Sign[1] * v[o.Axis[1]],
		o.Sign[2] * v[o.Axis[2]],
	}
}

func (o Orientation) String() string {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if o.Sign[i] < 0 {
			b.WriteByte('-')
		}
		b.WriteByte(byte('x' + o.Axis[i]))
	}
	return b.String()
}
